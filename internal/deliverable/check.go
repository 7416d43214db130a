package deliverable

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// issueIDPlaceholder is substituted in file paths and glob patterns before
// any matching happens.
const issueIDPlaceholder = "{issue_id}"

// CheckFailure reports one failed deliverable check. It carries the spec id,
// its description, and a human-readable reason.
type CheckFailure struct {
	ID          string
	Description string
	Reason      string
}

// Error implements the error interface.
func (f *CheckFailure) Error() string {
	return fmt.Sprintf("deliverable %q failed: %s", f.ID, f.Reason)
}

// Check evaluates one deliverable spec against the file system under
// workspaceRoot. It is a pure function of its inputs and the current file
// system state: reads only, never writes. A nil return means the check
// passed; an expected failure is returned as *CheckFailure. Only a malformed
// spec that bypassed write-time validation produces a non-CheckFailure error.
func Check(spec Spec, workspaceRoot string, issueID int) error {
	fail := func(reason string) error {
		return &CheckFailure{ID: spec.ID, Description: spec.Description, Reason: reason}
	}

	switch spec.Validates.Kind() {
	case KindFileExists:
		path := resolve(workspaceRoot, spec.Validates.FileExists.File, issueID)
		if _, err := os.Stat(path); err != nil {
			return fail(fmt.Sprintf("file %s does not exist", path))
		}
		return nil

	case KindFileGlob:
		pattern := resolve(workspaceRoot, spec.Validates.FileGlob.Pattern, issueID)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fail(fmt.Sprintf("invalid glob pattern %q: %v", pattern, err))
		}
		if len(matches) == 0 {
			return fail(fmt.Sprintf("no files match pattern %s", pattern))
		}
		return nil

	case KindContainsText:
		path := resolve(workspaceRoot, spec.Validates.ContainsText.File, issueID)
		content, err := os.ReadFile(path)
		if err != nil {
			return fail(fmt.Sprintf("file %s is not readable: %v", path, err))
		}
		if !strings.Contains(string(content), spec.Validates.ContainsText.Text) {
			return fail(fmt.Sprintf("file %s does not contain %q", path, spec.Validates.ContainsText.Text))
		}
		return nil

	case KindAbsentText:
		path := resolve(workspaceRoot, spec.Validates.AbsentText.File, issueID)
		content, err := os.ReadFile(path)
		if err != nil {
			// Nothing to forbid in a file that does not exist.
			if os.IsNotExist(err) {
				return nil
			}
			return fail(fmt.Sprintf("file %s is not readable: %v", path, err))
		}
		if strings.Contains(string(content), spec.Validates.AbsentText.Text) {
			return fail(fmt.Sprintf("file %s still contains forbidden text %q", path, spec.Validates.AbsentText.Text))
		}
		return nil

	case KindKeyPath:
		path := resolve(workspaceRoot, spec.Validates.KeyPath.File, issueID)
		return checkKeyPath(spec, path, spec.Validates.KeyPath.Path, fail)
	}

	return fmt.Errorf("deliverable %q has no validates variant set", spec.ID)
}

// checkKeyPath parses the target file as structured data and resolves the
// dot-notation path segment by segment, so a failure names the first segment
// that did not resolve. The YAML parser handles JSON too (JSON documents are
// valid YAML), so one parser covers both formats.
func checkKeyPath(spec Spec, path, keyPath string, fail func(string) error) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("file %s is not readable: %v", path, err))
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), koanfyaml.Parser()); err != nil {
		return fail(fmt.Sprintf("file %s is not valid JSON/YAML: %v", path, err))
	}

	// Exists, not Get: presence is what matters, and a key holding an
	// explicit null is still present.
	segments := strings.Split(keyPath, ".")
	for i := range segments {
		prefix := strings.Join(segments[:i+1], ".")
		if !k.Exists(prefix) {
			return fail(fmt.Sprintf("file %s has no key %q (segment %q did not resolve)", path, keyPath, segments[i]))
		}
	}
	return nil
}

// resolve substitutes the issue-id placeholder and anchors relative paths at
// the workspace root.
func resolve(workspaceRoot, path string, issueID int) string {
	path = strings.ReplaceAll(path, issueIDPlaceholder, strconv.Itoa(issueID))
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspaceRoot, path)
}
