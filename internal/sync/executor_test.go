package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gileck/templatesync/internal/manifest"
)

func (f *fixture) openStore(t *testing.T) *BaselineStore {
	t.Helper()
	store := NewBaselineStore(filepath.Join(t.TempDir(), "baseline.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	for path, fp := range f.baseline {
		require.NoError(t, store.Set(path, fp))
	}
	return store
}

// sync runs one full plan/apply cycle against the fixture.
func (f *fixture) sync(t *testing.T, store *BaselineStore) (*Plan, *ApplyResult, *Executor) {
	t.Helper()
	state, err := store.GetState()
	require.NoError(t, err)

	planner := NewPlanner(f.templateRoot, f.projectRoot, f.cfg, state, f.history)
	plan, err := planner.Plan()
	require.NoError(t, err)

	exec := NewExecutor(f.templateRoot, f.projectRoot, f.cfg, store, planner.Fingerprinter())
	result, err := exec.Apply(plan)
	require.NoError(t, err)
	return plan, result, exec
}

func readProject(t *testing.T, f *fixture, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.projectRoot, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestExecutor_CopyCommitsBaseline(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "export const x = 1")
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)

	assert.Equal(t, []string{"src/template/core.ts"}, result.Copied)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "export const x = 1", readProject(t, f, "src/template/core.ts"))

	fp, ok, err := store.Get("src/template/core.ts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, HashBytes([]byte("export const x = 1")), fp)
}

func TestExecutor_ApplyThenReplanIsAllSkips(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/a.ts", "a")
	f.writeTemplate(t, "src/template/b.ts", "b")
	f.writeProject(t, "src/template/stale.ts", "stale")
	store := f.openStore(t)

	_, first, _ := f.sync(t, store)
	require.Empty(t, first.Errors)

	plan, second, _ := f.sync(t, store)
	assert.False(t, plan.HasChanges())
	assert.Empty(t, second.Copied)
	assert.Empty(t, second.Deleted)
	assert.Empty(t, second.NeedsResolution)
}

func TestExecutor_DeletePrunesEmptyParents(t *testing.T) {
	f := newFixture(t)
	f.writeProject(t, "src/template/deep/nested/only.ts", "gone upstream")
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)

	assert.Equal(t, []string{"src/template/deep/nested/only.ts"}, result.Deleted)
	assert.NoDirExists(t, filepath.Join(f.projectRoot, "src", "template", "deep"))
	// the project root itself is never pruned
	assert.DirExists(t, f.projectRoot)

	_, ok, err := store.Get("src/template/deep/nested/only.ts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutor_DeleteKeepsNonEmptyParents(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/keep.ts", "keep")
	f.writeProject(t, "src/template/keep.ts", "keep")
	f.writeProject(t, "src/template/stale.ts", "stale")
	store := f.openStore(t)

	f.sync(t, store)

	assert.NoFileExists(t, filepath.Join(f.projectRoot, "src", "template", "stale.ts"))
	assert.FileExists(t, filepath.Join(f.projectRoot, "src", "template", "keep.ts"))
}

func TestExecutor_SkipSelfHealsBaseline(t *testing.T) {
	// simulates the file-written-but-baseline-lost window of an interrupted run
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "same")
	f.writeProject(t, "src/template/core.ts", "same")
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)

	assert.Equal(t, []string{"src/template/core.ts"}, result.Skipped)
	fp, ok, err := store.Get("src/template/core.ts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, HashBytes([]byte("same")), fp)
}

func TestExecutor_DivergedSurfacesWithoutMutation(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)

	require.Len(t, result.NeedsResolution, 1)
	assert.Equal(t, ActionDiverged, result.NeedsResolution[0].Action)
	// content untouched until an explicit resolution
	assert.Equal(t, "local edit", readProject(t, f, "src/template/core.ts"))
}

func TestExecutor_ResolveOverride(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	require.Len(t, result.NeedsResolution, 1)
	d := result.NeedsResolution[0]

	require.NoError(t, exec.Resolve(d, ResolutionOverride, result))

	assert.Equal(t, "template v2", readProject(t, f, "src/template/core.ts"))
	assert.False(t, f.cfg.IsOverride("src/template/core.ts"))

	fp, _, err := store.Get("src/template/core.ts")
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("template v2")), fp)

	// next run converges
	plan, _, _ := f.sync(t, store)
	assert.False(t, plan.HasChanges())
}

func TestExecutor_ResolveKeepDeclaresOverride(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	require.NoError(t, exec.Resolve(result.NeedsResolution[0], ResolutionKeep, result))

	assert.Equal(t, "local edit", readProject(t, f, "src/template/core.ts"))
	assert.True(t, f.cfg.IsOverride("src/template/core.ts"))
	assert.FileExists(t, f.cfg.Path)

	// next run skips it as an unchanged override
	plan, _, _ := f.sync(t, store)
	d := plan.Skips["src/template/core.ts"]
	require.NotNil(t, d)
	assert.False(t, d.TemplateChangedSinceOverride)
}

func TestExecutor_ResolveMergeWritesTemplateArtifact(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	require.NoError(t, exec.Resolve(result.NeedsResolution[0], ResolutionMerge, result))

	assert.Equal(t, "local edit", readProject(t, f, "src/template/core.ts"))
	assert.Equal(t, "template v2", readProject(t, f, "src/template/core.ts.template"))
	assert.True(t, f.cfg.IsOverride("src/template/core.ts"))

	// the artifact itself never enters a later plan
	plan, _, _ := f.sync(t, store)
	assert.Nil(t, plan.Get("src/template/core.ts.template"))
}

func TestExecutor_ResolveContributeQueuesPath(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local improvement")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	require.NoError(t, exec.Resolve(result.NeedsResolution[0], ResolutionContribute, result))

	assert.Equal(t, []string{"src/template/core.ts"}, result.Contributions)
	assert.True(t, f.cfg.IsOverride("src/template/core.ts"))
	assert.Equal(t, "local improvement", readProject(t, f, "src/template/core.ts"))
}

func TestExecutor_ResolveNoneLeavesEverything(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	require.NoError(t, exec.Resolve(result.NeedsResolution[0], ResolutionNone, result))

	assert.Equal(t, "local edit", readProject(t, f, "src/template/core.ts"))
	assert.False(t, f.cfg.IsOverride("src/template/core.ts"))

	// the record resurfaces on the next run
	_, again, _ := f.sync(t, store)
	require.Len(t, again.NeedsResolution, 1)
}

func TestExecutor_ResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "template v2")
	f.writeProject(t, "src/template/core.ts", "local edit")
	f.baseline["src/template/core.ts"] = HashBytes([]byte("template v1"))
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	d := result.NeedsResolution[0]
	require.NoError(t, exec.Resolve(d, ResolutionKeep, result))
	require.NoError(t, exec.Resolve(d, ResolutionKeep, result))

	assert.Equal(t, []string{"src/template/core.ts"}, f.cfg.ProjectOverrides)
}

func TestExecutor_CleanManifestMergeWritesFile(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "package.json", `{"name":"tmpl","version":"2.0.0","scripts":{"build":"tsc","lint":"eslint ."}}`)
	f.writeProject(t, "package.json", `{"name":"my-app","version":"2.0.0","scripts":{"build":"tsc","deploy":"vercel"}}`)
	f.history = &fakeHistory{base: []byte(`{"name":"tmpl","version":"2.0.0","scripts":{"build":"tsc"}}`)}
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)

	require.Empty(t, result.Errors)
	assert.Equal(t, []string{"package.json"}, result.Merged)

	doc, err := manifest.Parse([]byte(readProject(t, f, "package.json")))
	require.NoError(t, err)

	name, _ := doc.Get("name")
	assert.Equal(t, "my-app", name.Str)
	scripts, _ := doc.Get("scripts")
	require.Equal(t, manifest.KindObject, scripts.Kind)
	assert.True(t, scripts.Obj.Has("lint"))
	assert.True(t, scripts.Obj.Has("deploy"))
}

func TestExecutor_ConflictedMergeNeedsResolution(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "package.json", `{"license":"MIT"}`)
	f.writeProject(t, "package.json", `{"license":"Apache-2.0"}`)
	f.history = &fakeHistory{base: []byte(`{"license":"ISC"}`)}
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)

	require.Len(t, result.NeedsResolution, 1)
	d := result.NeedsResolution[0]
	assert.Equal(t, ActionMerge, d.Action)
	// untouched until the field conflict is answered
	assert.Equal(t, `{"license":"Apache-2.0"}`, readProject(t, f, "package.json"))

	require.NoError(t, exec.ResolveMergeConflicts(d, map[string]manifest.ConflictChoice{
		"license": manifest.UseTemplate,
	}))

	doc, err := manifest.Parse([]byte(readProject(t, f, "package.json")))
	require.NoError(t, err)
	license, _ := doc.Get("license")
	assert.Equal(t, "MIT", license.Str)
}

func TestExecutor_MergeBecomesThreeWayOnSecondRun(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "package.json", `{"name":"tmpl","version":"1.0.0"}`)
	f.writeProject(t, "package.json", `{"name":"my-app","version":"1.0.0"}`)
	store := f.openStore(t)
	f.history = NewStoreHistory(store)

	// first run has no base: the renamed name field conflicts
	_, result, exec := f.sync(t, store)
	require.Len(t, result.NeedsResolution, 1)
	require.NoError(t, exec.ResolveMergeConflicts(result.NeedsResolution[0], map[string]manifest.ConflictChoice{
		"name": manifest.UseProject,
	}))

	// the template bumps version; the stored base now explains the name rename
	f.writeTemplate(t, "package.json", `{"name":"tmpl","version":"2.0.0"}`)

	_, result, _ = f.sync(t, store)
	require.Empty(t, result.NeedsResolution)
	require.Equal(t, []string{"package.json"}, result.Merged)

	doc, err := manifest.Parse([]byte(readProject(t, f, "package.json")))
	require.NoError(t, err)
	name, _ := doc.Get("name")
	assert.Equal(t, "my-app", name.Str)
	version, _ := doc.Get("version")
	assert.Equal(t, "2.0.0", version.Str)
}

func TestExecutor_DeferredMergeChoiceWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "package.json", `{"license":"MIT"}`)
	f.writeProject(t, "package.json", `{"license":"Apache-2.0"}`)
	f.history = &fakeHistory{base: []byte(`{"license":"ISC"}`)}
	store := f.openStore(t)

	_, result, exec := f.sync(t, store)
	d := result.NeedsResolution[0]

	require.NoError(t, exec.ResolveMergeConflicts(d, map[string]manifest.ConflictChoice{
		"license": manifest.Defer,
	}))

	assert.Equal(t, `{"license":"Apache-2.0"}`, readProject(t, f, "package.json"))
}

func TestExecutor_PruneDropsOutOfScopeBaselines(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "x")
	f.writeProject(t, "src/template/core.ts", "x")
	f.baseline["src/removed-from-scope.ts"] = HashBytes([]byte("old"))
	f.cfg.ProjectOverrides = []string{"src/template/theme.ts"}
	f.baseline["src/template/theme.ts"] = HashBytes([]byte("theme"))
	store := f.openStore(t)

	f.sync(t, store)

	_, ok, err := store.Get("src/removed-from-scope.ts")
	require.NoError(t, err)
	assert.False(t, ok)

	// override baselines survive pruning even when the path left the trees
	_, ok, err = store.Get("src/template/theme.ts")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExecutor_IntegrityCheckRejectsMovedTemplate(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "planned content")
	store := f.openStore(t)

	state, err := store.GetState()
	require.NoError(t, err)
	planner := NewPlanner(f.templateRoot, f.projectRoot, f.cfg, state, nil)
	plan, err := planner.Plan()
	require.NoError(t, err)

	// the template moves between planning and applying
	f.writeTemplate(t, "src/template/core.ts", "changed underneath")

	exec := NewExecutor(f.templateRoot, f.projectRoot, f.cfg, store, planner.Fingerprinter())
	result, err := exec.Apply(plan)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "integrity check failed")
	assert.NoFileExists(t, filepath.Join(f.projectRoot, "src", "template", "core.ts"))

	_, ok, err := store.Get("src/template/core.ts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutor_ApplyFailsFastOnClosedStore(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/core.ts", "x")

	store := NewBaselineStore(filepath.Join(t.TempDir(), "baseline.db"))
	require.NoError(t, store.Open())
	require.NoError(t, store.Close())

	planner := NewPlanner(f.templateRoot, f.projectRoot, f.cfg, nil, nil)
	plan, err := planner.Plan()
	require.NoError(t, err)

	exec := NewExecutor(f.templateRoot, f.projectRoot, f.cfg, store, nil)
	_, err = exec.Apply(plan)
	require.Error(t, err)
	// nothing was written
	assert.NoFileExists(t, filepath.Join(f.projectRoot, "src", "template", "core.ts"))
}

func TestExecutor_CopyPreservesSymlinks(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, "src/template/real.ts", "content")
	require.NoError(t, os.Symlink("real.ts",
		filepath.Join(f.templateRoot, "src", "template", "alias.ts")))
	store := f.openStore(t)

	_, result, _ := f.sync(t, store)
	require.Empty(t, result.Errors)

	link := filepath.Join(f.projectRoot, "src", "template", "alias.ts")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "real.ts", target)
}
