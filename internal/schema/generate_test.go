package schema_test

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/hookgate/internal/schema"
)

func TestSchema(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Schema Suite")
}

// countLines returns the number of newlines in data.
func countLines(data []byte) int {
	lines := 0

	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}

	return lines
}

var _ = Describe("Generate", func() {
	var s map[string]any

	BeforeEach(func() {
		data, err := schema.GenerateJSON(true)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, &s)).To(Succeed())
	})

	It("sets the $schema URI and title", func() {
		Expect(s["$schema"]).To(Equal("https://json-schema.org/draft/2020-12/schema"))
		Expect(s["title"]).To(Equal("hookgate configuration"))
	})

	It("includes top-level properties", func() {
		props, ok := s["properties"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(props).To(HaveKey("hooks"))
		Expect(props).To(HaveKey("audit"))
		Expect(props).To(HaveKey("log"))
		Expect(props).To(HaveKey("version"))
	})

	It("defines Duration as string with pattern", func() {
		defs, ok := s["$defs"].(map[string]any)
		Expect(ok).To(BeTrue(), "$defs should exist")

		dur, ok := defs["Duration"].(map[string]any)
		Expect(ok).To(BeTrue(), "Duration def should exist")
		Expect(dur["type"]).To(Equal("string"))
		Expect(dur["pattern"]).NotTo(BeEmpty())
	})

	It("defines hook definitions with required name and events", func() {
		defs, ok := s["$defs"].(map[string]any)
		Expect(ok).To(BeTrue())

		hookDef, ok := defs["HookConfig"].(map[string]any)
		Expect(ok).To(BeTrue(), "HookConfig def should exist")
		Expect(hookDef["required"]).To(ConsistOf("name", "events"))
	})

	Describe("GenerateJSON", func() {
		It("produces compact JSON when indent is false", func() {
			data, err := schema.GenerateJSON(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(countLines(data)).To(Equal(1))
		})

		It("produces indented JSON when indent is true", func() {
			data, err := schema.GenerateJSON(true)
			Expect(err).NotTo(HaveOccurred())
			Expect(countLines(data)).To(BeNumerically(">", 10))
		})
	})
})

var _ = Describe("GenerateOutput", func() {
	var s map[string]any

	BeforeEach(func() {
		data, err := schema.OutputJSON()
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, &s)).To(Succeed())
	})

	It("describes an open object with a required string action", func() {
		Expect(s["type"]).To(Equal("object"))
		Expect(s).NotTo(HaveKeyWithValue("additionalProperties", false))
		Expect(s["required"]).To(ConsistOf("action"))

		props, ok := s["properties"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(props).To(HaveKey("data"))

		action, ok := props["action"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(action["type"]).To(Equal("string"))
	})

	It("carries its own id", func() {
		Expect(s["$id"]).To(Equal(schema.OutputSchemaURL))
	})
})

var _ = Describe("SchemaDirective", func() {
	It("points at the versioned schema file", func() {
		Expect(schema.Filename()).To(Equal("config.v1.schema.json"))
		Expect(schema.SchemaDirective()).To(HaveSuffix("/config.v1.schema.json"))
	})
})

var _ = Describe("GenerateOutputJSON", func() {
	It("pretty-prints when asked", func() {
		compact, err := schema.OutputJSON()
		Expect(err).NotTo(HaveOccurred())

		indented, err := schema.GenerateOutputJSON(true)
		Expect(err).NotTo(HaveOccurred())
		Expect(countLines(indented)).To(BeNumerically(">", countLines(compact)))
		Expect(schema.OutputFilename()).To(HaveSuffix(".schema.json"))
	})
})
