package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gileck/templatesync/internal/config"
	"github.com/gileck/templatesync/internal/manifest"
	"github.com/gileck/templatesync/internal/utils"
)

// Resolution is the explicit answer to a conflict, diverged, or merge record.
type Resolution string

const (
	// ResolutionOverride discards local edits and adopts the template content.
	ResolutionOverride Resolution = "override"
	// ResolutionKeep retains local content and declares a project override.
	ResolutionKeep Resolution = "keep"
	// ResolutionMerge writes the template content to a sibling
	// `<path>.template` artifact for manual reconciliation.
	ResolutionMerge Resolution = "merge"
	// ResolutionContribute keeps local content and queues it for
	// upstream-contribution reporting.
	ResolutionContribute Resolution = "contribute"
	// ResolutionNone leaves content and baseline untouched.
	ResolutionNone Resolution = "none"
)

// TemplateArtifactSuffix marks the sibling file a merge resolution leaves
// behind for manual reconciliation.
const TemplateArtifactSuffix = ".template"

// ApplyResult summarizes one executed plan.
type ApplyResult struct {
	Copied  []string
	Deleted []string
	Merged  []string
	Skipped []string

	// NeedsResolution lists conflict/diverged decisions and manifest merges
	// with unresolved field conflicts; they are replayed through Resolve.
	NeedsResolution []*Decision

	// Contributions queues paths resolved with ResolutionContribute.
	Contributions []string

	Errors []error
}

// Executor applies plan decisions and resolutions to the project tree and
// commits the matching baseline updates. All effects are idempotent:
// replaying the same resolution twice yields the same end state.
type Executor struct {
	templateRoot string
	projectRoot  string
	cfg          *config.Config
	baseline     *BaselineStore
	fp           *Fingerprinter
}

func NewExecutor(templateRoot, projectRoot string, cfg *config.Config, baseline *BaselineStore, fp *Fingerprinter) *Executor {
	if fp == nil {
		fp = NewFingerprinter()
	}
	return &Executor{
		templateRoot: templateRoot,
		projectRoot:  projectRoot,
		cfg:          cfg,
		baseline:     baseline,
		fp:           fp,
	}
}

// Apply executes a plan. Bucket order is fixed: copy, delete, merge, then
// conflict/diverged collection, so a manifest merge is applied against the
// field-level result computed from the planning snapshot, never recomputed
// over a half-mutated tree. Returns a fatal error only when state stores are
// unusable before any mutation.
func (e *Executor) Apply(plan *Plan) (*ApplyResult, error) {
	if err := e.checkStores(); err != nil {
		return nil, err
	}

	result := &ApplyResult{}

	for _, d := range sortedDecisions(plan.Copies) {
		if err := e.applyCopy(d); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Copied = append(result.Copied, d.Path)
	}

	for _, d := range sortedDecisions(plan.Deletes) {
		if err := e.applyDelete(d); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Deleted = append(result.Deleted, d.Path)
	}

	for _, d := range sortedDecisions(plan.Merges) {
		merged, err := e.applyMerge(d)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if !merged {
			result.NeedsResolution = append(result.NeedsResolution, d)
			continue
		}
		result.Merged = append(result.Merged, d.Path)
	}

	for _, d := range sortedDecisions(plan.Skips) {
		// self-heal: an interrupted earlier run may have written the file
		// but not the baseline; equal sides are safe to re-acknowledge
		if d.InTemplate && d.InProject && !d.IsOverride &&
			d.TemplateFingerprint == d.ProjectFingerprint && d.TemplateFingerprint != "" {
			if err := e.baseline.Set(d.Path, d.TemplateFingerprint); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
		result.Skipped = append(result.Skipped, d.Path)
	}

	result.NeedsResolution = append(result.NeedsResolution, sortedDecisions(plan.Conflicts)...)
	result.NeedsResolution = append(result.NeedsResolution, sortedDecisions(plan.Diverged)...)

	if err := e.pruneBaseline(plan); err != nil {
		result.Errors = append(result.Errors, err)
	}

	slog.Info("apply",
		"copied", len(result.Copied),
		"deleted", len(result.Deleted),
		"merged", len(result.Merged),
		"skipped", len(result.Skipped),
		"needsResolution", len(result.NeedsResolution),
		"errors", len(result.Errors),
	)
	return result, nil
}

// Resolve replays an explicit resolution for a conflict, diverged, or merge
// decision and commits the paired config/baseline mutation.
func (e *Executor) Resolve(d *Decision, resolution Resolution, result *ApplyResult) error {
	if d == nil {
		return fmt.Errorf("nil decision")
	}
	if resolution == ResolutionNone {
		// reconsidered next run
		return nil
	}

	if err := e.checkStores(); err != nil {
		return err
	}

	tfp := d.TemplateFingerprint
	if tfp == "" || tfp == AbsentFingerprint {
		fp, err := e.fp.Fingerprint(e.templateRoot, d.Path)
		if err != nil {
			return err
		}
		tfp = fp
	}

	switch resolution {
	case ResolutionOverride:
		// discard local edits, adopt template content, clear the override
		if err := e.copyFromTemplate(d.Path, tfp); err != nil {
			return err
		}
		if e.cfg.RemoveOverride(d.Path) {
			if err := e.cfg.Save(); err != nil {
				return err
			}
		}
		return e.baseline.Set(d.Path, tfp)

	case ResolutionKeep, ResolutionContribute:
		// retain local content, acknowledge the template side
		changed := e.cfg.AddOverride(d.Path)
		if changed {
			if err := e.cfg.Save(); err != nil {
				return err
			}
		}
		if err := e.baseline.Set(d.Path, tfp); err != nil {
			return err
		}
		if resolution == ResolutionContribute && result != nil {
			result.Contributions = append(result.Contributions, d.Path)
		}
		return nil

	case ResolutionMerge:
		// leave local content, park the template side next to it
		artifact := d.Path + TemplateArtifactSuffix
		if err := e.copyFile(e.templateRoot, d.Path, artifact, tfp); err != nil {
			return err
		}
		if e.cfg.AddOverride(d.Path) {
			if err := e.cfg.Save(); err != nil {
				return err
			}
		}
		return e.baseline.Set(d.Path, tfp)

	default:
		return fmt.Errorf("unknown resolution %q for %s", resolution, d.Path)
	}
}

// checkStores verifies the baseline and config stores are usable. Losing
// either mid-run would leave no way to reason about what happened, so this
// aborts before any filesystem mutation.
func (e *Executor) checkStores() error {
	if e.baseline == nil || e.baseline.db == nil {
		return fmt.Errorf("baseline store is not open")
	}
	if _, err := e.baseline.Count(); err != nil {
		return fmt.Errorf("baseline store unusable: %w", err)
	}
	if e.cfg.Path != "" {
		dir := filepath.Dir(e.cfg.Path)
		if !utils.IsWritable(dir) {
			return fmt.Errorf("config store not writable: %s", dir)
		}
	}
	return nil
}

func (e *Executor) applyCopy(d *Decision) error {
	if err := e.copyFromTemplate(d.Path, d.TemplateFingerprint); err != nil {
		return err
	}
	return e.baseline.Set(d.Path, d.TemplateFingerprint)
}

func (e *Executor) applyDelete(d *Decision) error {
	absPath := filepath.Join(e.projectRoot, filepath.FromSlash(d.Path))

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", d.Path, err)
	}
	if err := e.baseline.Delete(d.Path); err != nil {
		return err
	}

	e.pruneEmptyParents(absPath)
	return nil
}

// applyMerge writes the merged manifest when the field merge is clean.
// Returns false when unresolved field conflicts remain.
func (e *Executor) applyMerge(d *Decision) (bool, error) {
	result := d.MergeResult
	if result == nil {
		return false, fmt.Errorf("merge decision for %s carries no merge result", d.Path)
	}
	if !result.Success {
		// malformed manifest on one side: never guess, never copy
		return false, fmt.Errorf("manifest merge %s: %w", d.Path, result.Err)
	}
	if result.HasConflicts() {
		return false, nil
	}
	return true, e.writeMerged(d, result)
}

// writeMerged encodes and installs a merge result, then baselines the path
// against the template side so the next run sees it as acknowledged. The
// template content is stored as the manifest base, turning the next run's
// merge 3-way.
func (e *Executor) writeMerged(d *Decision, result *manifest.MergeResult) error {
	data, err := result.Merged.Encode()
	if err != nil {
		return fmt.Errorf("encode merged manifest %s: %w", d.Path, err)
	}

	absPath := filepath.Join(e.projectRoot, filepath.FromSlash(d.Path))
	if err := utils.WriteFileAtomic(absPath, data, 0o644); err != nil {
		return fmt.Errorf("write merged manifest %s: %w", d.Path, err)
	}

	templateData, err := os.ReadFile(filepath.Join(e.templateRoot, filepath.FromSlash(d.Path)))
	if err != nil {
		return fmt.Errorf("read template manifest %s: %w", d.Path, err)
	}
	if err := e.baseline.SetManifestBase(d.Path, templateData); err != nil {
		return err
	}
	return e.baseline.Set(d.Path, d.TemplateFingerprint)
}

// ResolveMergeConflicts applies per-field choices to a merge decision and,
// once no conflicts remain, writes the merged manifest.
func (e *Executor) ResolveMergeConflicts(d *Decision, choices map[string]manifest.ConflictChoice) error {
	if d.MergeResult == nil || !d.MergeResult.Success {
		return fmt.Errorf("no resolvable merge result for %s", d.Path)
	}

	fields := make([]string, 0, len(choices))
	for field := range choices {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if err := d.MergeResult.ResolveConflict(field, choices[field]); err != nil {
			return err
		}
	}

	if d.MergeResult.HasConflicts() {
		// deferred fields: kept unresolved for the next run
		return nil
	}
	return e.writeMerged(d, d.MergeResult)
}

// copyFromTemplate installs the template's version of path into the project,
// preserving symlinks as symlinks.
func (e *Executor) copyFromTemplate(relPath, expectedFingerprint string) error {
	return e.copyFile(e.templateRoot, relPath, relPath, expectedFingerprint)
}

func (e *Executor) copyFile(srcRoot, srcRel, dstRel, expectedFingerprint string) error {
	srcAbs := filepath.Join(srcRoot, filepath.FromSlash(srcRel))
	dstAbs := filepath.Join(e.projectRoot, filepath.FromSlash(dstRel))

	kind := ClassifyPath(srcAbs)
	switch kind {
	case KindAbsent:
		return fmt.Errorf("copy %s: source disappeared", srcRel)

	case KindDir:
		return fmt.Errorf("copy %s: source is a directory", srcRel)

	case KindSymlinkDir, KindSymlinkBroken, KindSymlinkFile:
		target, err := os.Readlink(srcAbs)
		if err != nil {
			return fmt.Errorf("copy %s: %w", srcRel, err)
		}
		if err := utils.EnsureParent(dstAbs); err != nil {
			return fmt.Errorf("copy %s: %w", srcRel, err)
		}
		// recreate the link; symlinks cannot be written atomically in place
		if err := os.Remove(dstAbs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("copy %s: %w", srcRel, err)
		}
		if err := os.Symlink(target, dstAbs); err != nil {
			return fmt.Errorf("copy %s: %w", srcRel, err)
		}
		return nil

	default:
		return writeFileWithIntegrityCheck(srcAbs, dstAbs, expectedFingerprint)
	}
}

// writeFileWithIntegrityCheck copies src to dst via a temp file in dst's
// directory, verifying content against the fingerprint captured at planning
// time before the atomic rename. A mismatch means the template moved under
// the run.
func writeFileWithIntegrityCheck(src, dst, expectedFingerprint string) error {
	if err := utils.EnsureParent(dst); err != nil {
		return fmt.Errorf("ensure parent for %s: %w", dst, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer srcFile.Close()

	tempFile, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tsync.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	hasher := md5.New()
	writer := io.MultiWriter(tempFile, hasher)
	if _, err := io.Copy(writer, srcFile); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if expectedFingerprint != "" {
		computed := fmt.Sprintf("%x", hasher.Sum(nil))
		if computed != expectedFingerprint {
			return fmt.Errorf("integrity check failed for %s: expected %q got %q", dst, expectedFingerprint, computed)
		}
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", dst, err)
	}

	success = true
	return nil
}

// pruneEmptyParents removes now-empty parent directories of absPath up to,
// but never including, the project root.
func (e *Executor) pruneEmptyParents(absPath string) {
	dir := filepath.Dir(absPath)
	for dir != e.projectRoot && len(dir) > len(e.projectRoot) {
		if err := os.Remove(dir); err != nil {
			// non-empty or gone: stop walking up
			return
		}
		dir = filepath.Dir(dir)
	}
}

// pruneBaseline drops baseline entries for paths no longer in scope or
// declared as overrides.
func (e *Executor) pruneBaseline(plan *Plan) error {
	keep := plan.Paths()
	keep = keep.Union(mapset.NewThreadUnsafeSet(e.cfg.ProjectOverrides...))
	_, err := e.baseline.Prune(keep)
	return err
}

func sortedDecisions(bucket map[string]*Decision) []*Decision {
	paths := make([]string, 0, len(bucket))
	for path := range bucket {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make([]*Decision, len(paths))
	for i, path := range paths {
		out[i] = bucket[path]
	}
	return out
}
