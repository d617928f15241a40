// Command schema-gen writes the config and hook output JSON Schemas into a
// directory, "schema" unless one is given as the first argument.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/internal/schema"
)

const filePerms = 0o644

type target struct {
	name     string
	generate func(indent bool) ([]byte, error)
}

func main() {
	outDir := "schema"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	targets := []target{
		{name: schema.Filename(), generate: schema.GenerateJSON},
		{name: schema.OutputFilename(), generate: schema.GenerateOutputJSON},
	}

	for _, t := range targets {
		path, err := write(outDir, t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(path)
	}
}

func write(dir string, t target) (string, error) {
	data, err := t.generate(true)
	if err != nil {
		return "", errors.Wrapf(err, "generating %s", t.name)
	}

	path := filepath.Clean(filepath.Join(dir, t.name))

	//nolint:gosec // dev tool, dir comes from the command line
	if err := os.WriteFile(path, data, filePerms); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}

	return path, nil
}
