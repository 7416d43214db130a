package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBranch_Valid(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		want    BranchRef
	}{
		{
			name:   "feature branch",
			branch: "feature/229-retry-loop",
			want:   BranchRef{Type: "feature", IssueID: 229, Slug: "retry-loop"},
		},
		{
			name:   "bugfix branch",
			branch: "bugfix/7-null-deref",
			want:   BranchRef{Type: "bugfix", IssueID: 7, Slug: "null-deref"},
		},
		{
			name:   "epic branch",
			branch: "epic/76-governance",
			want:   BranchRef{Type: "epic", IssueID: 76, Slug: "governance"},
		},
		{
			name:   "slug with dots and underscores",
			branch: "chore/12-v2.1_cleanup",
			want:   BranchRef{Type: "chore", IssueID: 12, Slug: "v2.1_cleanup"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseBranch(tt.branch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

func TestParseBranch_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		branch string
	}{
		{name: "main branch", branch: "main"},
		{name: "no issue number", branch: "feature/retry-loop"},
		{name: "no slug", branch: "feature/229"},
		{name: "unknown type", branch: "spike/229-retry-loop"},
		{name: "zero issue number", branch: "feature/0-nothing"},
		{name: "nested slash", branch: "feature/229-retry/loop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBranch(tt.branch)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.branch)
		})
	}
}

func TestParseBranch_ErrorNamesExpectedShape(t *testing.T) {
	_, err := ParseBranch("whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<type>/<number>-<slug>")
}

func TestIsMainBranch(t *testing.T) {
	assert.True(t, IsMainBranch("main"))
	assert.True(t, IsMainBranch("master"))
	assert.False(t, IsMainBranch("feature/229-retry-loop"))
}

func TestDetectBranch_NotARepo(t *testing.T) {
	_, err := DetectBranch(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotGitRepo)
}
