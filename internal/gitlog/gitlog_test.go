package gitlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with commits on a feature branch and
// returns its path.
func initRepo(t *testing.T, branch string, messages []string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial commit", &gogit.CommitOptions{Author: sig})
	require.NoError(t, err)

	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}))
	for i, msg := range messages {
		name := filepath.Join(dir, "file"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte(msg), 0o644))
		_, err = wt.Add(filepath.Base(name))
		require.NoError(t, err)
		_, err = wt.Commit(msg, &gogit.CommitOptions{Author: sig})
		require.NoError(t, err)
	}
	return dir
}

func TestMessages_MostRecentFirst(t *testing.T) {
	dir := initRepo(t, "feature/229-auth", []string{
		"phase: research notes",
		"phase: planning outline",
	})
	reader := NewRepoReader(dir, 0)

	msgs, err := reader.Messages(context.Background(), "feature/229-auth", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "planning")
	assert.Contains(t, msgs[1], "research")
	assert.Contains(t, msgs[2], "initial")
}

func TestMessages_RespectsLimit(t *testing.T) {
	dir := initRepo(t, "feature/229-auth", []string{"one", "two", "three"})
	reader := NewRepoReader(dir, 0)

	msgs, err := reader.Messages(context.Background(), "feature/229-auth", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "three")
	assert.Contains(t, msgs[1], "two")
}

func TestMessages_UnknownBranch(t *testing.T) {
	dir := initRepo(t, "feature/229-auth", nil)
	reader := NewRepoReader(dir, 0)

	_, err := reader.Messages(context.Background(), "feature/999-missing", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature/999-missing")
}

func TestMessages_NotARepository(t *testing.T) {
	reader := NewRepoReader(t.TempDir(), 0)

	_, err := reader.Messages(context.Background(), "feature/229-auth", 10)
	require.Error(t, err)
}

func TestMessages_CancelledContext(t *testing.T) {
	dir := initRepo(t, "feature/229-auth", []string{"one"})
	reader := NewRepoReader(dir, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Messages(ctx, "feature/229-auth", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanTimeout)
}

func TestMessages_CancelledContextBeforeOpen(t *testing.T) {
	// Cancellation surfaces before the repository is touched, so even a
	// reader pointed at nothing fails closed with the timeout error.
	reader := NewRepoReader(t.TempDir(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Messages(ctx, "feature/229-auth", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanTimeout)
}
