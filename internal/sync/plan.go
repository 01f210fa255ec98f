package sync

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gileck/templatesync/internal/manifest"
)

// Action is the per-path outcome of planning.
type Action string

const (
	ActionCopy     Action = "copy"
	ActionDelete   Action = "delete"
	ActionSkip     Action = "skip"
	ActionConflict Action = "conflict"
	ActionMerge    Action = "merge"
	ActionDiverged Action = "diverged"
)

// Decision is one planned outcome. Conflict and diverged decisions wait for
// an explicit resolution; merge decisions carry the field-level merge
// computed against the planning snapshot.
type Decision struct {
	Action Action
	Path   string
	Reason string

	InTemplate                   bool
	InProject                    bool
	IsOverride                   bool
	TemplateChangedSinceOverride bool

	// fingerprints captured at planning time
	TemplateFingerprint string
	ProjectFingerprint  string

	// populated for merge decisions only
	MergeResult *manifest.MergeResult
}

// Plan aggregates the decisions of one planning pass, bucketed by action.
// Ignored paths are excluded from the plan entirely and listed only for
// reporting.
type Plan struct {
	Copies    map[string]*Decision
	Deletes   map[string]*Decision
	Skips     map[string]*Decision
	Merges    map[string]*Decision
	Conflicts map[string]*Decision
	Diverged  map[string]*Decision

	Ignored mapset.Set[string]
	Errors  []error
}

func NewPlan() *Plan {
	return &Plan{
		Copies:    make(map[string]*Decision),
		Deletes:   make(map[string]*Decision),
		Skips:     make(map[string]*Decision),
		Merges:    make(map[string]*Decision),
		Conflicts: make(map[string]*Decision),
		Diverged:  make(map[string]*Decision),
		Ignored:   mapset.NewThreadUnsafeSet[string](),
	}
}

func (p *Plan) add(d *Decision) {
	switch d.Action {
	case ActionCopy:
		p.Copies[d.Path] = d
	case ActionDelete:
		p.Deletes[d.Path] = d
	case ActionSkip:
		p.Skips[d.Path] = d
	case ActionMerge:
		p.Merges[d.Path] = d
	case ActionConflict:
		p.Conflicts[d.Path] = d
	case ActionDiverged:
		p.Diverged[d.Path] = d
	}
}

// Get looks a decision up by path across all buckets.
func (p *Plan) Get(path string) *Decision {
	for _, bucket := range p.buckets() {
		if d, ok := bucket[path]; ok {
			return d
		}
	}
	return nil
}

// Paths returns every planned path (ignored paths excluded).
func (p *Plan) Paths() mapset.Set[string] {
	paths := mapset.NewThreadUnsafeSet[string]()
	for _, bucket := range p.buckets() {
		for path := range bucket {
			paths.Add(path)
		}
	}
	return paths
}

// HasChanges reports whether anything beyond skips was planned.
func (p *Plan) HasChanges() bool {
	return len(p.Copies) > 0 ||
		len(p.Deletes) > 0 ||
		len(p.Merges) > 0 ||
		len(p.Conflicts) > 0 ||
		len(p.Diverged) > 0
}

// NeedsResolution returns the conflict and diverged decisions awaiting an
// explicit resolution.
func (p *Plan) NeedsResolution() []*Decision {
	var out []*Decision
	for _, d := range p.Conflicts {
		out = append(out, d)
	}
	for _, d := range p.Diverged {
		out = append(out, d)
	}
	return out
}

func (p *Plan) buckets() []map[string]*Decision {
	return []map[string]*Decision{
		p.Copies, p.Deletes, p.Skips, p.Merges, p.Conflicts, p.Diverged,
	}
}
