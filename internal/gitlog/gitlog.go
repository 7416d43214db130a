// Package gitlog provides read-only access to commit message history. The
// engine uses it for exactly one thing: inferring the current phase of a
// branch during state reconstruction. It never mutates the repository.
package gitlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrScanTimeout indicates the history scan exceeded its deadline. The scan
// fails closed: the caller gets an error, never an indefinite block.
var ErrScanTimeout = errors.New("commit history scan timed out")

// DefaultTimeout bounds one history scan.
const DefaultTimeout = 5 * time.Second

// Reader yields commit messages on a branch, most recent first, bounded to a
// fixed window. Implementations must honor ctx cancellation.
type Reader interface {
	Messages(ctx context.Context, branch string, limit int) ([]string, error)
}

// RepoReader reads history from a local repository via go-git.
type RepoReader struct {
	path    string
	timeout time.Duration
}

// NewRepoReader creates a reader over the repository at path. A zero timeout
// falls back to DefaultTimeout.
func NewRepoReader(path string, timeout time.Duration) *RepoReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RepoReader{path: path, timeout: timeout}
}

// Messages returns up to limit commit messages on branch, most recent
// first. A branch with no commits yields an empty slice, not an error.
func (r *RepoReader) Messages(ctx context.Context, branch string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The deadline is consulted before each step and between commits. An
	// individual go-git call is not itself preemptible, so a pathological
	// object can overrun the budget by one call.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: branch %q before open", ErrScanTimeout, branch)
	}
	repo, err := gogit.PlainOpen(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", r.path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: branch %q before resolve", ErrScanTimeout, branch)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolving branch %q: %w", branch, err)
	}

	iter, err := repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("reading log for branch %q: %w", branch, err)
	}
	defer iter.Close()

	messages := make([]string, 0, limit)
	for len(messages) < limit {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: branch %q after %d commits", ErrScanTimeout, branch, len(messages))
		}
		commit, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating log for branch %q: %w", branch, err)
		}
		messages = append(messages, commit.Message)
	}
	return messages, nil
}
