package state

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/docio"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
)

// document is the on-disk shape of the state store: one JSON document
// holding every branch's cached state, keyed by branch name.
type document struct {
	Branches map[string]*BranchState `json:"branches"`
}

// Store provides whole-document read-modify-write access to the branch
// state cache. The file lives outside version control; correctness across
// machines comes from reconstruction, not from synchronizing this file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a state store over the JSON document at path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the cached state for branch, or a NotFoundError when the
// cache has no entry. Callers that can reconstruct should treat the
// not-found as a cache miss, not a failure.
func (s *Store) Load(ctx context.Context, branch string) (*BranchState, error) {
	var loaded *BranchState
	err := docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		st, ok := doc.Branches[branch]
		if !ok {
			return errdefs.NewNotFoundError("branch state", branch,
				"state will be reconstructed from the project plan and commit history")
		}
		loaded = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// Save writes the state for its branch, replacing any existing entry.
func (s *Store) Save(ctx context.Context, st *BranchState) error {
	if st.Branch == "" {
		return errdefs.Validationf("branch state has no branch name")
	}
	if st.CurrentPhase == "" {
		return errdefs.Validationf("branch state for %q has no current phase", st.Branch)
	}
	return docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		doc.Branches[st.Branch] = st
		return s.write(doc)
	})
}

// read loads the whole store document. Callers must hold the store lock.
func (s *Store) read() (*document, error) {
	content, exists, err := docio.ReadFile(s.path)
	if err != nil {
		return nil, errdefs.NewStoreError("load", s.path, err)
	}
	doc := &document{Branches: map[string]*BranchState{}}
	if !exists {
		return doc, nil
	}
	if err := json.Unmarshal(content, doc); err != nil {
		return nil, errdefs.NewStoreError("load", s.path, fmt.Errorf("parsing state document: %w", err))
	}
	if doc.Branches == nil {
		doc.Branches = map[string]*BranchState{}
	}
	return doc, nil
}

// write persists the whole store document atomically. Callers must hold the
// store lock.
func (s *Store) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errdefs.NewStoreError("save", s.path, err)
	}
	if err := docio.WriteAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return errdefs.NewStoreError("save", s.path, err)
	}
	return nil
}
