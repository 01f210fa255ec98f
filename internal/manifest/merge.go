package manifest

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultDeepMergeFields are the nested tables merged key-by-key instead of
// treated as opaque values.
var DefaultDeepMergeFields = []string{
	"dependencies",
	"devDependencies",
	"peerDependencies",
	"optionalDependencies",
	"scripts",
}

const removedMarker = "(removed)"

// FieldConflict records a field both sides changed to different values.
// Path holds the key segments (len 2 for a nested table entry); Field is the
// dotted display form.
type FieldConflict struct {
	Field    string
	Path     []string
	Base     *Value
	Template Value
	Project  Value
}

// MergeResult is the outcome of a manifest merge. Merged is always populated
// when Success is true; field conflicts default to the project value until
// resolved.
type MergeResult struct {
	Merged             *Document
	AutoMergedFields   []string
	ProjectKeptFields  []string
	TemplateOnlyFields []string
	ProjectOnlyFields  []string
	Conflicts          []FieldConflict
	Success            bool
	Err                error
}

// HasConflicts reports whether unresolved field conflicts remain.
func (r *MergeResult) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Merger performs deterministic 2-way/3-way field-level merges of manifest
// documents.
type Merger struct {
	deepFields []string
}

func NewMerger(deepFields []string) *Merger {
	if deepFields == nil {
		deepFields = DefaultDeepMergeFields
	}
	return &Merger{deepFields: deepFields}
}

func (m *Merger) isDeepField(field string) bool {
	return slices.Contains(m.deepFields, field)
}

// MergeBytes parses all sides and merges. Malformed content on any present
// side fails this merge without discarding either side's data. A nil or empty
// base degrades to the 2-way merge.
func (m *Merger) MergeBytes(base, template, project []byte) *MergeResult {
	var baseDoc *Document
	if len(base) > 0 {
		doc, err := Parse(base)
		if err != nil {
			return &MergeResult{Success: false, Err: fmt.Errorf("base manifest: %w", err)}
		}
		baseDoc = doc
	}

	templateDoc, err := Parse(template)
	if err != nil {
		return &MergeResult{Success: false, Err: fmt.Errorf("template manifest: %w", err)}
	}
	projectDoc, err := Parse(project)
	if err != nil {
		return &MergeResult{Success: false, Err: fmt.Errorf("project manifest: %w", err)}
	}

	return m.Merge(baseDoc, templateDoc, projectDoc)
}

// Merge is a pure function of its three inputs: identical inputs always yield
// an identical merged document and identical conflict set. Output key order is
// the project's original order with template-only keys appended in template
// order. A nil base performs the 2-way merge.
func (m *Merger) Merge(base, template, project *Document) *MergeResult {
	result := &MergeResult{
		Merged:  NewDocument(),
		Success: true,
	}

	if base == nil {
		m.mergeTwoWay(result, template, project)
	} else {
		m.mergeThreeWay(result, base, template, project)
	}
	return result
}

// mergeTwoWay handles the first sync, when no baseline manifest content is
// available to compare against.
func (m *Merger) mergeTwoWay(result *MergeResult, template, project *Document) {
	for _, key := range project.Keys() {
		pv, _ := project.Get(key)
		tv, inTemplate := template.Get(key)

		if !inTemplate {
			result.Merged.Set(key, cloneValue(pv))
			result.ProjectOnlyFields = append(result.ProjectOnlyFields, key)
			continue
		}
		if pv.Equal(tv) {
			result.Merged.Set(key, cloneValue(pv))
			continue
		}
		if m.isDeepField(key) && pv.Kind == KindObject && tv.Kind == KindObject {
			merged := mergeNestedTwoWay(tv.Obj, pv.Obj)
			result.Merged.Set(key, Object(merged))
			result.AutoMergedFields = append(result.AutoMergedFields, key)
			continue
		}
		// both present, different, not deep-mergeable: conflict, project value wins for now
		result.Merged.Set(key, cloneValue(pv))
		result.Conflicts = append(result.Conflicts, FieldConflict{
			Field:    key,
			Path:     []string{key},
			Template: cloneValue(tv),
			Project:  cloneValue(pv),
		})
	}

	for _, key := range template.Keys() {
		if project.Has(key) {
			continue
		}
		tv, _ := template.Get(key)
		result.Merged.Set(key, cloneValue(tv))
		result.TemplateOnlyFields = append(result.TemplateOnlyFields, key)
	}
}

// mergeNestedTwoWay merges two nested tables without a base: project wins per
// key, template-only keys are added.
func mergeNestedTwoWay(template, project *Document) *Document {
	merged := NewDocument()
	for _, k := range project.Keys() {
		pv, _ := project.Get(k)
		merged.Set(k, cloneValue(pv))
	}
	for _, k := range template.Keys() {
		if !project.Has(k) {
			tv, _ := template.Get(k)
			merged.Set(k, cloneValue(tv))
		}
	}
	return merged
}

// mergeThreeWay compares each side against the base per key.
func (m *Merger) mergeThreeWay(result *MergeResult, base, template, project *Document) {
	// project order first, then template-only keys in template order.
	// Keys present only in base were removed from both sides and are dropped.
	for _, key := range project.Keys() {
		m.mergeThreeWayKey(result, key, base, template, project)
	}
	for _, key := range template.Keys() {
		if project.Has(key) {
			continue
		}
		m.mergeThreeWayKey(result, key, base, template, project)
	}
}

func (m *Merger) mergeThreeWayKey(result *MergeResult, key string, base, template, project *Document) {
	bv, inBase := base.Get(key)
	tv, inTemplate := template.Get(key)
	pv, inProject := project.Get(key)

	switch {
	case !inBase && inTemplate && !inProject:
		// new in template only
		result.Merged.Set(key, cloneValue(tv))
		result.TemplateOnlyFields = append(result.TemplateOnlyFields, key)

	case !inBase && !inTemplate && inProject:
		// new in project only
		result.Merged.Set(key, cloneValue(pv))
		result.ProjectOnlyFields = append(result.ProjectOnlyFields, key)

	case !inBase && inTemplate && inProject:
		// added on both sides
		if tv.Equal(pv) {
			result.Merged.Set(key, cloneValue(pv))
			return
		}
		m.mergeBothChanged(result, key, nil, tv, pv)

	case inBase && !inTemplate && inProject:
		// removed from template
		if pv.Equal(bv) {
			// project didn't touch it: the removal propagates
			result.AutoMergedFields = append(result.AutoMergedFields, key+" "+removedMarker)
			return
		}
		result.Merged.Set(key, cloneValue(pv))
		result.ProjectKeptFields = append(result.ProjectKeptFields, key)

	case inBase && inTemplate && !inProject:
		// removed from project: respect the deletion permanently, never re-add
		result.ProjectKeptFields = append(result.ProjectKeptFields, key+" "+removedMarker)

	case inBase && inTemplate && inProject:
		templateChanged := !tv.Equal(bv)
		projectChanged := !pv.Equal(bv)

		switch {
		case !templateChanged && !projectChanged:
			result.Merged.Set(key, cloneValue(pv))
		case templateChanged && !projectChanged:
			result.Merged.Set(key, cloneValue(tv))
			result.AutoMergedFields = append(result.AutoMergedFields, key)
		case !templateChanged && projectChanged:
			result.Merged.Set(key, cloneValue(pv))
			result.ProjectKeptFields = append(result.ProjectKeptFields, key)
		case tv.Equal(pv):
			// both changed to the same value: no conflict
			result.Merged.Set(key, cloneValue(pv))
		default:
			m.mergeBothChanged(result, key, &bv, tv, pv)
		}
	}
}

// mergeBothChanged handles a key both sides changed to different values:
// deep-mergeable tables recurse one level, everything else is a field
// conflict defaulting to the project value.
func (m *Merger) mergeBothChanged(result *MergeResult, key string, base *Value, tv, pv Value) {
	if m.isDeepField(key) && tv.Kind == KindObject && pv.Kind == KindObject {
		var baseObj *Document
		if base != nil && base.Kind == KindObject {
			baseObj = base.Obj
		}
		merged := m.mergeNestedThreeWay(result, key, baseObj, tv.Obj, pv.Obj)
		result.Merged.Set(key, Object(merged))
		result.AutoMergedFields = append(result.AutoMergedFields, key)
		return
	}

	result.Merged.Set(key, cloneValue(pv))
	result.Conflicts = append(result.Conflicts, FieldConflict{
		Field:    key,
		Path:     []string{key},
		Base:     cloneValuePtr(base),
		Template: cloneValue(tv),
		Project:  cloneValue(pv),
	})
}

// mergeNestedThreeWay applies the per-key three-way rules one level down.
// Nested keys both sides changed differently become conflicts on
// "parent.child" and default to the project value.
func (m *Merger) mergeNestedThreeWay(result *MergeResult, parent string, base, template, project *Document) *Document {
	merged := NewDocument()

	nestedKey := func(k string) ([]string, string) {
		return []string{parent, k}, parent + "." + k
	}

	for _, k := range project.Keys() {
		pv, _ := project.Get(k)
		tv, inTemplate := template.Get(k)
		bv, inBase := base.Get(k)

		if !inTemplate {
			if inBase && pv.Equal(bv) {
				// removed from template, project unchanged: drop
				continue
			}
			merged.Set(k, cloneValue(pv))
			continue
		}
		if tv.Equal(pv) {
			merged.Set(k, cloneValue(pv))
			continue
		}

		if !inBase {
			// added on both sides with different values
			path, field := nestedKey(k)
			merged.Set(k, cloneValue(pv))
			result.Conflicts = append(result.Conflicts, FieldConflict{
				Field:    field,
				Path:     path,
				Template: cloneValue(tv),
				Project:  cloneValue(pv),
			})
			continue
		}

		templateChanged := !tv.Equal(bv)
		projectChanged := !pv.Equal(bv)
		switch {
		case templateChanged && !projectChanged:
			merged.Set(k, cloneValue(tv))
		case !templateChanged && projectChanged:
			merged.Set(k, cloneValue(pv))
		default:
			// both changed differently (one level down: no further recursion)
			path, field := nestedKey(k)
			merged.Set(k, cloneValue(pv))
			result.Conflicts = append(result.Conflicts, FieldConflict{
				Field:    field,
				Path:     path,
				Base:     cloneValuePtr(&bv),
				Template: cloneValue(tv),
				Project:  cloneValue(pv),
			})
		}
	}

	for _, k := range template.Keys() {
		if project.Has(k) {
			continue
		}
		tv, _ := template.Get(k)
		bv, inBase := base.Get(k)
		if inBase && tv.Equal(bv) {
			// project removed it and template didn't change it: respect the deletion
			continue
		}
		if inBase {
			// project removed it, template changed it: the removal still wins
			continue
		}
		// new in template
		merged.Set(k, cloneValue(tv))
	}

	return merged
}

func cloneValuePtr(v *Value) *Value {
	if v == nil {
		return nil
	}
	c := cloneValue(*v)
	return &c
}

// ConflictFields lists the dotted names of all unresolved conflicts.
func (r *MergeResult) ConflictFields() []string {
	fields := make([]string, len(r.Conflicts))
	for i, c := range r.Conflicts {
		fields[i] = c.Field
	}
	return fields
}

// Summary renders a one-line overview for logs.
func (r *MergeResult) Summary() string {
	if !r.Success {
		return fmt.Sprintf("merge failed: %v", r.Err)
	}
	return fmt.Sprintf("auto=%d kept=%d templateOnly=%d projectOnly=%d conflicts=%s",
		len(r.AutoMergedFields), len(r.ProjectKeptFields),
		len(r.TemplateOnlyFields), len(r.ProjectOnlyFields),
		conflictSummary(r.Conflicts))
}

func conflictSummary(conflicts []FieldConflict) string {
	if len(conflicts) == 0 {
		return "none"
	}
	fields := make([]string, len(conflicts))
	for i, c := range conflicts {
		fields[i] = c.Field
	}
	return strings.Join(fields, ",")
}
