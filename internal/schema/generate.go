// Package schema generates JSON Schemas for the hookgate config file and for
// the stdout message a hook program may emit.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"

	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

const (
	schemaURI   = "https://json-schema.org/draft/2020-12/schema"
	title       = "hookgate configuration"
	outputTitle = "hookgate hook output"

	// OutputSchemaURL identifies the hook output schema when it is compiled.
	OutputSchemaURL = "https://hookgate.dev/schema/hook-output.json"

	// configSchemaBaseURL is where released config schemas are published.
	configSchemaBaseURL = "https://hookgate.dev/schema/"
)

// Filename returns the versioned config schema file name.
func Filename() string {
	return fmt.Sprintf("config.v%d.schema.json", config.CurrentConfigVersion)
}

// OutputFilename returns the hook output schema file name.
func OutputFilename() string {
	return "hook-output.schema.json"
}

// SchemaDirective returns the Taplo schema comment written at the top of
// generated config files.
func SchemaDirective() string {
	return "#:schema " + configSchemaBaseURL + Filename()
}

// Generate produces a JSON Schema from the config.Config struct.
func Generate() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}

	s := r.Reflect(&config.Config{})
	s.Version = schemaURI
	s.Title = title

	return s
}

// GenerateOutput produces the schema of a hook's modify message: an object
// with a required string "action" and an optional "data". Other keys are
// allowed and ignored.
func GenerateOutput() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}

	s := r.Reflect(&hook.Output{})
	s.Version = schemaURI
	s.ID = jsonschema.ID(OutputSchemaURL)
	s.Title = outputTitle

	return s
}

// GenerateJSON produces the config JSON Schema as bytes.
// When indent is true, the output is pretty-printed.
func GenerateJSON(indent bool) ([]byte, error) {
	return marshal(Generate(), indent)
}

// GenerateOutputJSON produces the hook output JSON Schema as bytes.
func GenerateOutputJSON(indent bool) ([]byte, error) {
	return marshal(GenerateOutput(), indent)
}

// OutputJSON produces the hook output JSON Schema as compact bytes.
func OutputJSON() ([]byte, error) {
	return GenerateOutputJSON(false)
}

func marshal(s *jsonschema.Schema, indent bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if indent {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = json.Marshal(s)
	}

	if err != nil {
		return nil, errors.Wrap(err, "marshaling schema to JSON")
	}

	// Append trailing newline for file output.
	return append(data, '\n'), nil
}
