package manifest

import (
	"fmt"
)

// ConflictChoice selects which side a field conflict resolves to.
type ConflictChoice string

const (
	// UseProject keeps the project's value (the merged default).
	UseProject ConflictChoice = "use-project"
	// UseTemplate adopts the template's value.
	UseTemplate ConflictChoice = "use-template"
	// Defer leaves the conflict unresolved for the next run.
	Defer ConflictChoice = "defer"
)

// ResolveConflict applies a choice to the named field conflict, mutating the
// merged document and the conflict list. Resolving with Defer keeps the
// conflict. Unknown fields are an error.
func (r *MergeResult) ResolveConflict(field string, choice ConflictChoice) error {
	idx := -1
	for i, c := range r.Conflicts {
		if c.Field == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no conflict recorded for field %q", field)
	}

	conflict := r.Conflicts[idx]

	switch choice {
	case Defer:
		return nil
	case UseProject:
		// merged already defaults to the project value
	case UseTemplate:
		if err := r.setAtPath(conflict.Path, conflict.Template); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown conflict choice %q", choice)
	}

	r.Conflicts = append(r.Conflicts[:idx], r.Conflicts[idx+1:]...)
	return nil
}

func (r *MergeResult) setAtPath(path []string, v Value) error {
	if len(path) == 0 {
		return fmt.Errorf("empty conflict path")
	}

	doc := r.Merged
	for _, seg := range path[:len(path)-1] {
		next, ok := doc.Get(seg)
		if !ok || next.Kind != KindObject {
			return fmt.Errorf("conflict path %v no longer resolves to a nested table", path)
		}
		doc = next.Obj
	}
	doc.Set(path[len(path)-1], cloneValue(v))
	return nil
}
