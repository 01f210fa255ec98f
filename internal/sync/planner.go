package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gileck/templatesync/internal/config"
	"github.com/gileck/templatesync/internal/manifest"
)

// Planner runs one reconciliation pass over the template and project trees
// and produces a Plan. Planning never mutates the filesystem, the baseline,
// or the config.
type Planner struct {
	templateRoot string
	projectRoot  string
	cfg          *config.Config
	resolver     *Resolver
	fp           *Fingerprinter
	baseline     map[string]string
	history      TemplateHistory
	merger       *manifest.Merger
}

// NewPlanner wires a planner. baseline is the persisted fingerprint map
// (may be empty on first sync); history may be nil.
func NewPlanner(templateRoot, projectRoot string, cfg *config.Config, baseline map[string]string, history TemplateHistory) *Planner {
	if baseline == nil {
		baseline = map[string]string{}
	}
	return &Planner{
		templateRoot: templateRoot,
		projectRoot:  projectRoot,
		cfg:          cfg,
		resolver:     NewResolver(cfg, NewIgnoreList(projectRoot)),
		fp:           NewFingerprinter(),
		baseline:     baseline,
		history:      history,
		merger:       manifest.NewMerger(nil),
	}
}

// Fingerprinter exposes the planner's fingerprinter so the executor shares
// its cache within one run.
func (p *Planner) Fingerprinter() *Fingerprinter {
	return p.fp
}

// Plan scans both trees and decides every path in scope: the union of
// template-owned paths in either tree, plus designated manifest files present
// in both. Ignored paths are excluded from the plan entirely.
func (p *Planner) Plan() (*Plan, error) {
	templateState, tErrs := NewTreeScanner(p.templateRoot).Scan()
	projectState, pErrs := NewTreeScanner(p.projectRoot).Scan()

	plan := NewPlan()
	plan.Errors = append(plan.Errors, tErrs...)
	plan.Errors = append(plan.Errors, pErrs...)

	scope := ExpandPatterns(p.cfg.TemplatePaths, templateState)
	scope = scope.Union(ExpandPatterns(p.cfg.TemplatePaths, projectState))
	for _, mf := range p.cfg.ManifestFiles {
		_, inTemplate := templateState[mf]
		_, inProject := projectState[mf]
		if inTemplate && inProject {
			scope.Add(mf)
		}
	}

	paths := scope.ToSlice()
	sort.Strings(paths)

	for _, path := range paths {
		decision, err := p.decide(path, templateState, projectState)
		if err != nil {
			plan.Errors = append(plan.Errors, err)
			continue
		}
		if decision == nil {
			plan.Ignored.Add(path)
			continue
		}
		plan.add(decision)
	}

	slog.Debug("plan",
		"copies", len(plan.Copies),
		"deletes", len(plan.Deletes),
		"skips", len(plan.Skips),
		"merges", len(plan.Merges),
		"conflicts", len(plan.Conflicts),
		"diverged", len(plan.Diverged),
		"ignored", plan.Ignored.Cardinality(),
		"errors", len(plan.Errors),
	)
	return plan, nil
}

// decide runs the per-path state machine. A nil decision means the path is
// ignored.
func (p *Planner) decide(path string, templateState, projectState map[string]*PathInfo) (*Decision, error) {
	if p.resolver.Classify(path) == ClassIgnored {
		return nil, nil
	}

	_, inTemplate := templateState[path]
	_, inProject := projectState[path]
	isOverride := p.cfg.IsOverride(path)

	// designated manifest present in both trees: field-level merge,
	// bypassing every other rule
	if p.cfg.IsManifest(path) && inTemplate && inProject {
		return p.planMerge(path)
	}

	switch {
	case inProject && !inTemplate:
		// a real directory on the template side means the trees disagree
		// about what this path is; overwriting could destroy a subtree
		if ClassifyRel(p.templateRoot, path) == KindDir {
			return p.kindMismatch(path, inTemplate, inProject, isOverride), nil
		}
		// a file on the template side where the project has a parent
		// directory: the mismatch covers the whole subtree
		if ancestorIsFile(path, templateState) {
			return p.kindMismatch(path, inTemplate, inProject, isOverride), nil
		}
		if isOverride {
			return &Decision{
				Action:     ActionSkip,
				Path:       path,
				Reason:     "override, template absent",
				InProject:  true,
				IsOverride: true,
			}, nil
		}
		return &Decision{
			Action:    ActionDelete,
			Path:      path,
			Reason:    "removed from template",
			InProject: true,
		}, nil

	case inTemplate && !inProject:
		if ClassifyRel(p.projectRoot, path) == KindDir {
			return p.kindMismatch(path, inTemplate, inProject, isOverride), nil
		}
		if ancestorIsFile(path, projectState) {
			return p.kindMismatch(path, inTemplate, inProject, isOverride), nil
		}
		tfp, err := p.fp.Fingerprint(p.templateRoot, path)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Action:              ActionCopy,
			Path:                path,
			Reason:              "new file from template",
			InTemplate:          true,
			TemplateFingerprint: tfp,
			ProjectFingerprint:  AbsentFingerprint,
		}, nil

	default:
		return p.decideBoth(path, isOverride)
	}
}

// decideBoth handles a path present in both trees.
func (p *Planner) decideBoth(path string, isOverride bool) (*Decision, error) {
	tfp, err := p.fp.Fingerprint(p.templateRoot, path)
	if err != nil {
		return nil, err
	}
	pfp, err := p.fp.Fingerprint(p.projectRoot, path)
	if err != nil {
		return nil, err
	}

	baseFp, hasBase := p.baseline[path]

	if isOverride {
		// overrides are never overwritten by planning; the reason only
		// tells the user whether the template moved underneath them
		changed := !hasBase || tfp != baseFp
		reason := "override, template unchanged"
		if changed {
			reason = "override, template changed since override - review"
		}
		return &Decision{
			Action:                       ActionSkip,
			Path:                         path,
			Reason:                       reason,
			InTemplate:                   true,
			InProject:                    true,
			IsOverride:                   true,
			TemplateChangedSinceOverride: changed,
			TemplateFingerprint:          tfp,
			ProjectFingerprint:           pfp,
		}, nil
	}

	if tfp == pfp {
		return &Decision{
			Action:              ActionSkip,
			Path:                path,
			Reason:              "already up to date",
			InTemplate:          true,
			InProject:           true,
			TemplateFingerprint: tfp,
			ProjectFingerprint:  pfp,
		}, nil
	}

	if hasBase && pfp != baseFp {
		// the project edited a template-owned file without declaring an
		// override; the template does not silently win
		return &Decision{
			Action:              ActionDiverged,
			Path:                path,
			Reason:              "project modified a template-owned file without declaring an override",
			InTemplate:          true,
			InProject:           true,
			TemplateFingerprint: tfp,
			ProjectFingerprint:  pfp,
		}, nil
	}

	if !hasBase && p.history != nil {
		existed, err := p.history.ExistedAtLastSync(path)
		if err != nil {
			return nil, fmt.Errorf("history check %s: %w", path, err)
		}
		if existed {
			// trees differ and the path predates baseline tracking:
			// a blind copy could silently discard an unexplained local edit
			return &Decision{
				Action:              ActionConflict,
				Path:                path,
				Reason:              "local content predates baseline tracking - review",
				InTemplate:          true,
				InProject:           true,
				TemplateFingerprint: tfp,
				ProjectFingerprint:  pfp,
			}, nil
		}
	}

	return &Decision{
		Action:              ActionCopy,
		Path:                path,
		Reason:              "updated in template",
		InTemplate:          true,
		InProject:           true,
		TemplateFingerprint: tfp,
		ProjectFingerprint:  pfp,
	}, nil
}

func (p *Planner) planMerge(path string) (*Decision, error) {
	templateData, err := os.ReadFile(filepath.Join(p.templateRoot, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read template manifest %s: %w", path, err)
	}
	projectData, err := os.ReadFile(filepath.Join(p.projectRoot, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read project manifest %s: %w", path, err)
	}

	var baseData []byte
	if p.history != nil {
		baseData, err = p.history.ManifestBase(path)
		if err != nil {
			slog.Warn("manifest base unavailable, merging 2-way", "path", path, "error", err)
			baseData = nil
		}
	}

	result := p.merger.MergeBytes(baseData, templateData, projectData)

	reason := "manifest merge: " + result.Summary()
	return &Decision{
		Action:              ActionMerge,
		Path:                path,
		Reason:              reason,
		InTemplate:          true,
		InProject:           true,
		IsOverride:          p.cfg.IsOverride(path),
		TemplateFingerprint: HashBytes(templateData),
		ProjectFingerprint:  HashBytes(projectData),
		MergeResult:         result,
	}, nil
}

// ancestorIsFile reports whether any ancestor of path is a scanned entry in
// state. Scans only record non-directories, so a hit means the other tree has
// a file where this path needs a directory.
func ancestorIsFile(path string, state map[string]*PathInfo) bool {
	for {
		i := strings.LastIndexByte(path, '/')
		if i < 0 {
			return false
		}
		path = path[:i]
		if _, ok := state[path]; ok {
			return true
		}
	}
}

func (p *Planner) kindMismatch(path string, inTemplate, inProject, isOverride bool) *Decision {
	return &Decision{
		Action:     ActionConflict,
		Path:       path,
		Reason:     "file/directory kind mismatch between template and project",
		InTemplate: inTemplate,
		InProject:  inProject,
		IsOverride: isOverride,
	}
}
