// Package git provides Git branch utilities for phasegate.
//
// This package includes functions for detecting the current Git branch and
// parsing workflow branch names of the form <type>/<number>-<slug>, which is
// how a branch is tied back to its issue and project plan.
package git

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	gogit "github.com/go-git/go-git/v5"
)

var (
	// ErrNotGitRepo indicates the directory is not a Git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("HEAD is detached")
)

// BranchTypes are the known branch-name prefixes a workflow branch may use.
var BranchTypes = []string{"feature", "bugfix", "hotfix", "chore", "task", "epic"}

// branchPattern matches <type>/<number>-<slug>, e.g. "feature/229-retry-loop".
var branchPattern = regexp.MustCompile(`^([a-z]+)/(\d+)-([A-Za-z0-9._-]+)$`)

// BranchRef is a parsed workflow branch name.
type BranchRef struct {
	// Type is the branch-type prefix, e.g. "feature".
	Type string
	// IssueID is the issue number embedded in the branch name.
	IssueID int
	// Slug is the trailing human-readable fragment.
	Slug string
}

// ParseBranch parses a workflow branch name of the form
// <type>/<number>-<slug> against the known branch types.
//
// Example:
//
//	ref, err := git.ParseBranch("feature/229-retry-loop")
//	// ref.Type == "feature", ref.IssueID == 229, ref.Slug == "retry-loop"
func ParseBranch(branch string) (BranchRef, error) {
	m := branchPattern.FindStringSubmatch(branch)
	if m == nil {
		return BranchRef{}, fmt.Errorf("branch %q does not match <type>/<number>-<slug> (types: %v)", branch, BranchTypes)
	}
	if !knownType(m[1]) {
		return BranchRef{}, fmt.Errorf("branch %q uses unknown type %q (types: %v)", branch, m[1], BranchTypes)
	}
	issueID, err := strconv.Atoi(m[2])
	if err != nil || issueID <= 0 {
		return BranchRef{}, fmt.Errorf("branch %q embeds invalid issue number %q", branch, m[2])
	}
	return BranchRef{Type: m[1], IssueID: issueID, Slug: m[3]}, nil
}

func knownType(t string) bool {
	for _, known := range BranchTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DetectBranch detects the current Git branch of a repository at
// projectPath.
//
// Returns:
//   - Branch name (e.g., "main", "feature/229-retry-loop")
//   - ErrNotGitRepo if the path is not a repository
//   - ErrDetachedHead if HEAD does not point at a branch
func DetectBranch(projectPath string) (string, error) {
	repo, err := gogit.PlainOpen(projectPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, projectPath)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDetachedHead, projectPath)
	}

	if !head.Name().IsBranch() {
		return "", fmt.Errorf("%w: %s", ErrDetachedHead, projectPath)
	}
	return head.Name().Short(), nil
}

// IsMainBranch checks if the given branch name is a main branch. Main
// branches never carry workflow state; only issue branches do.
func IsMainBranch(branch string) bool {
	return branch == "main" || branch == "master"
}
