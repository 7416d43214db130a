// Package deliverable defines declarative deliverable checks and their
// evaluator. A deliverable is a checkable artifact or condition expected to
// exist by a given point in the workflow; the check kinds form a closed sum
// type so that adding a kind is a new variant plus one evaluator, not an if
// chain scattered across call sites.
package deliverable

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies one check variant.
type Kind string

const (
	// KindFileExists checks that a literal path exists.
	KindFileExists Kind = "file_exists"
	// KindFileGlob checks that at least one path matches a glob pattern.
	KindFileGlob Kind = "file_glob"
	// KindContainsText checks that a file contains a literal substring.
	KindContainsText Kind = "contains_text"
	// KindAbsentText checks that a file does not contain a literal substring.
	KindAbsentText Kind = "absent_text"
	// KindKeyPath checks that a dot-notation path resolves in a structured file.
	KindKeyPath Kind = "key_path"
)

// variantFields maps each valid variant to its required fields. The map
// drives both write-time validation and the error message naming every
// valid variant.
var variantFields = map[Kind][]string{
	KindFileExists:   {"file"},
	KindFileGlob:     {"pattern"},
	KindContainsText: {"file", "text"},
	KindAbsentText:   {"file", "text"},
	KindKeyPath:      {"file", "path"},
}

// FileExists asserts the presence of a literal path.
type FileExists struct {
	File string `yaml:"file" json:"file"`
}

// FileGlob asserts that one or more paths match a pattern under the
// workspace root.
type FileGlob struct {
	Pattern string `yaml:"pattern" json:"pattern"`
}

// ContainsText asserts a file contains a literal substring.
type ContainsText struct {
	File string `yaml:"file" json:"file"`
	Text string `yaml:"text" json:"text"`
}

// AbsentText asserts a file does not contain a literal substring. A missing
// file passes: there is nothing to forbid.
type AbsentText struct {
	File string `yaml:"file" json:"file"`
	Text string `yaml:"text" json:"text"`
}

// KeyPath asserts a dot-notation path resolves in a JSON/YAML file.
// Presence is sufficient; the value is not inspected.
type KeyPath struct {
	File string `yaml:"file" json:"file"`
	Path string `yaml:"path" json:"path"`
}

// Validates is the tagged union of check variants. Exactly one variant is
// set; this invariant is enforced when the owning plan document is decoded.
type Validates struct {
	FileExists   *FileExists   `yaml:"file_exists,omitempty" json:"file_exists,omitempty"`
	FileGlob     *FileGlob     `yaml:"file_glob,omitempty" json:"file_glob,omitempty"`
	ContainsText *ContainsText `yaml:"contains_text,omitempty" json:"contains_text,omitempty"`
	AbsentText   *AbsentText   `yaml:"absent_text,omitempty" json:"absent_text,omitempty"`
	KeyPath      *KeyPath      `yaml:"key_path,omitempty" json:"key_path,omitempty"`
}

// Kind returns which variant is set, or "" if none is.
func (v *Validates) Kind() Kind {
	switch {
	case v.FileExists != nil:
		return KindFileExists
	case v.FileGlob != nil:
		return KindFileGlob
	case v.ContainsText != nil:
		return KindContainsText
	case v.AbsentText != nil:
		return KindAbsentText
	case v.KeyPath != nil:
		return KindKeyPath
	}
	return ""
}

// UnmarshalYAML decodes the union, rejecting unknown variants, multiple
// variants, and missing required fields. The error message names every valid
// variant and its required fields so a plan author can fix the document
// without reading source.
func (v *Validates) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]map[string]string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("validates must be a mapping of one check variant: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("validates must declare exactly one variant, got %d; %s", len(raw), validVariants())
	}

	for name, fields := range raw {
		kind := Kind(name)
		required, ok := variantFields[kind]
		if !ok {
			return fmt.Errorf("unknown validates variant %q; %s", name, validVariants())
		}
		for _, field := range required {
			if strings.TrimSpace(fields[field]) == "" {
				return fmt.Errorf("validates variant %q requires field %q; %s", name, field, validVariants())
			}
		}
		switch kind {
		case KindFileExists:
			v.FileExists = &FileExists{File: fields["file"]}
		case KindFileGlob:
			v.FileGlob = &FileGlob{Pattern: fields["pattern"]}
		case KindContainsText:
			v.ContainsText = &ContainsText{File: fields["file"], Text: fields["text"]}
		case KindAbsentText:
			v.AbsentText = &AbsentText{File: fields["file"], Text: fields["text"]}
		case KindKeyPath:
			v.KeyPath = &KeyPath{File: fields["file"], Path: fields["path"]}
		}
	}
	return nil
}

// Validate enforces the exactly-one-variant invariant for unions built in
// code rather than decoded from a document.
func (v *Validates) Validate() error {
	count := 0
	if v.FileExists != nil {
		count++
		if v.FileExists.File == "" {
			return fmt.Errorf("file_exists requires field \"file\"; %s", validVariants())
		}
	}
	if v.FileGlob != nil {
		count++
		if v.FileGlob.Pattern == "" {
			return fmt.Errorf("file_glob requires field \"pattern\"; %s", validVariants())
		}
	}
	if v.ContainsText != nil {
		count++
		if v.ContainsText.File == "" || v.ContainsText.Text == "" {
			return fmt.Errorf("contains_text requires fields \"file\" and \"text\"; %s", validVariants())
		}
	}
	if v.AbsentText != nil {
		count++
		if v.AbsentText.File == "" || v.AbsentText.Text == "" {
			return fmt.Errorf("absent_text requires fields \"file\" and \"text\"; %s", validVariants())
		}
	}
	if v.KeyPath != nil {
		count++
		if v.KeyPath.File == "" || v.KeyPath.Path == "" {
			return fmt.Errorf("key_path requires fields \"file\" and \"path\"; %s", validVariants())
		}
	}
	if count != 1 {
		return fmt.Errorf("validates must declare exactly one variant, got %d; %s", count, validVariants())
	}
	return nil
}

// validVariants renders the full variant catalogue for error messages.
func validVariants() string {
	names := make([]string, 0, len(variantFields))
	for kind := range variantFields {
		names = append(names, string(kind))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("valid variants: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s{%s}", name, strings.Join(variantFields[Kind(name)], ", "))
	}
	return b.String()
}

// Spec is one declared deliverable: an id unique within its owning list, a
// human-readable description, and the check that validates it.
type Spec struct {
	ID          string    `yaml:"id" json:"id"`
	Description string    `yaml:"description" json:"description"`
	Validates   Validates `yaml:"validates" json:"validates"`
}

// Validate checks the spec is structurally sound.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("deliverable id must not be empty")
	}
	if err := s.Validates.Validate(); err != nil {
		return fmt.Errorf("deliverable %q: %w", s.ID, err)
	}
	return nil
}
