package deliverable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidates_UnmarshalYAML_Variants(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind Kind
	}{
		{name: "file_exists", doc: "file_exists:\n  file: docs/plan.md\n", kind: KindFileExists},
		{name: "file_glob", doc: "file_glob:\n  pattern: 'docs/*.md'\n", kind: KindFileGlob},
		{name: "contains_text", doc: "contains_text:\n  file: NOTES.md\n  text: 'decision:'\n", kind: KindContainsText},
		{name: "absent_text", doc: "absent_text:\n  file: main.go\n  text: TODO\n", kind: KindAbsentText},
		{name: "key_path", doc: "key_path:\n  file: config.yaml\n  path: server.port\n", kind: KindKeyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Validates
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &v))
			assert.Equal(t, tt.kind, v.Kind())
			require.NoError(t, v.Validate())
		})
	}
}

func TestValidates_UnmarshalYAML_UnknownVariant(t *testing.T) {
	var v Validates
	err := yaml.Unmarshal([]byte("shell_command:\n  run: make test\n"), &v)
	require.Error(t, err)
	// The error names every valid variant and its required fields.
	assert.Contains(t, err.Error(), "shell_command")
	assert.Contains(t, err.Error(), "file_exists{file}")
	assert.Contains(t, err.Error(), "file_glob{pattern}")
	assert.Contains(t, err.Error(), "contains_text{file, text}")
	assert.Contains(t, err.Error(), "absent_text{file, text}")
	assert.Contains(t, err.Error(), "key_path{file, path}")
}

func TestValidates_UnmarshalYAML_MissingField(t *testing.T) {
	var v Validates
	err := yaml.Unmarshal([]byte("contains_text:\n  file: NOTES.md\n"), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"text"`)
	assert.Contains(t, err.Error(), "valid variants")
}

func TestValidates_UnmarshalYAML_MultipleVariants(t *testing.T) {
	var v Validates
	doc := "file_exists:\n  file: a.md\nfile_glob:\n  pattern: '*.md'\n"
	err := yaml.Unmarshal([]byte(doc), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one variant")
}

func TestValidates_Validate_NoVariant(t *testing.T) {
	var v Validates
	err := v.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one variant")
}

func TestSpec_Validate(t *testing.T) {
	spec := Spec{
		ID:        "design-doc",
		Validates: Validates{FileExists: &FileExists{File: "docs/design.md"}},
	}
	require.NoError(t, spec.Validate())

	spec.ID = "  "
	require.Error(t, spec.Validate())
}
