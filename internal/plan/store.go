package plan

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/phasegate/internal/deliverable"
	"github.com/fyrsmithlabs/phasegate/internal/docio"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
)

// document is the on-disk shape of the plan store: a single YAML document
// holding every issue's plan, keyed by issue id.
type document struct {
	Plans map[int]*ProjectPlan `yaml:"plans"`
}

// Store provides whole-document read-modify-write access to the plan file.
// The file is version-controlled and shared across machines; it is the
// durable source of truth branch state is reconstructed from.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a plan store over the YAML document at path.
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

// Load returns the plan for issueID, or a NotFoundError directing the caller
// to initialize planning first.
func (s *Store) Load(ctx context.Context, issueID int) (*ProjectPlan, error) {
	var loaded *ProjectPlan
	err := docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		p, ok := doc.Plans[issueID]
		if !ok {
			return errdefs.NewNotFoundError("project plan", strconv.Itoa(issueID),
				"initialize the project plan for this issue before starting workflow operations")
		}
		loaded = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// Save validates and writes the plan for its issue id, replacing any
// existing entry for that issue.
func (s *Store) Save(ctx context.Context, p *ProjectPlan) error {
	if err := p.Validate(); err != nil {
		return errdefs.NewValidationError(err.Error(), "fix the plan document and retry")
	}
	return docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		doc.Plans[p.IssueID] = p
		return s.write(doc)
	})
}

// Init creates the plan for a new issue, refusing to clobber an existing
// entry. Plans are created once per issue before work starts.
func (s *Store) Init(ctx context.Context, p *ProjectPlan) error {
	if err := p.Validate(); err != nil {
		return errdefs.NewValidationError(err.Error(), "fix the plan document and retry")
	}
	return docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		if _, exists := doc.Plans[p.IssueID]; exists {
			return errdefs.Validationf("a plan for issue %d already exists; plans are never overwritten wholesale", p.IssueID)
		}
		doc.Plans[p.IssueID] = p
		s.logger.Info("initialized project plan",
			zap.Int("issue_id", p.IssueID),
			zap.String("workflow", p.WorkflowName))
		return s.write(doc)
	})
}

// MergeCycleDeliverables folds incoming cycle definitions into the issue's
// cycle plan: new cycle numbers are appended, existing cycles have their
// deliverable lists merged by id (matching ids overwrite in place, new ids
// append), and total_cycles is raised to cover the highest cycle number
// present, never lowered.
func (s *Store) MergeCycleDeliverables(ctx context.Context, issueID int, incoming []Cycle) error {
	return docio.WithLock(ctx, s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		p, ok := doc.Plans[issueID]
		if !ok {
			return errdefs.NewNotFoundError("project plan", strconv.Itoa(issueID),
				"initialize the project plan for this issue before merging deliverables")
		}

		if p.CyclePlan == nil {
			p.CyclePlan = &CyclePlan{}
		}
		for _, in := range incoming {
			if in.Number < 1 {
				return errdefs.Validationf("incoming cycle number %d must be >= 1", in.Number)
			}
			existing, found := p.Cycle(in.Number)
			if !found {
				p.CyclePlan.Cycles = append(p.CyclePlan.Cycles, in)
				continue
			}
			if in.Name != "" {
				existing.Name = in.Name
			}
			if in.ExitCriteria != "" {
				existing.ExitCriteria = in.ExitCriteria
			}
			if in.PhaseExitCriteria != "" {
				existing.PhaseExitCriteria = in.PhaseExitCriteria
			}
			existing.Deliverables = mergeSpecs(existing.Deliverables, in.Deliverables)
		}

		highest := p.CyclePlan.TotalCycles
		for _, c := range p.CyclePlan.Cycles {
			if c.Number > highest {
				highest = c.Number
			}
		}
		p.CyclePlan.TotalCycles = highest

		if err := p.Validate(); err != nil {
			return errdefs.NewValidationError(
				fmt.Sprintf("merge would leave an invalid plan: %v", err),
				"incoming cycles must keep cycle numbers a unique 1..N sequence")
		}
		s.logger.Info("merged cycle deliverables",
			zap.Int("issue_id", issueID),
			zap.Int("total_cycles", p.CyclePlan.TotalCycles))
		return s.write(doc)
	})
}

// mergeSpecs merges incoming deliverables into current by id: a matching id
// overwrites in place (last write wins), a new id appends.
func mergeSpecs(current, incoming []deliverable.Spec) []deliverable.Spec {
	for _, in := range incoming {
		replaced := false
		for i := range current {
			if current[i].ID == in.ID {
				current[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			current = append(current, in)
		}
	}
	return current
}

// read loads the whole store document. Callers must hold the store lock.
func (s *Store) read() (*document, error) {
	content, exists, err := docio.ReadFile(s.path)
	if err != nil {
		return nil, errdefs.NewStoreError("load", s.path, err)
	}
	doc := &document{Plans: map[int]*ProjectPlan{}}
	if !exists {
		return doc, nil
	}
	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, errdefs.NewStoreError("load", s.path, fmt.Errorf("parsing plan document: %w", err))
	}
	if doc.Plans == nil {
		doc.Plans = map[int]*ProjectPlan{}
	}
	return doc, nil
}

// write persists the whole store document atomically. Callers must hold the
// store lock.
func (s *Store) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errdefs.NewStoreError("save", s.path, err)
	}
	if err := docio.WriteAtomic(s.path, data, 0o644); err != nil {
		return errdefs.NewStoreError("save", s.path, err)
	}
	return nil
}
