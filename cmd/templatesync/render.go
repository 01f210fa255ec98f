package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/gileck/templatesync/internal/sync"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorLabel() string {
	return red("error:")
}

// renderPlan prints one bucketed plan. Skips are summarized unless verbose.
func renderPlan(w io.Writer, plan *sync.Plan, verbose bool) {
	renderBucket(w, green("copy"), plan.Copies)
	renderBucket(w, red("delete"), plan.Deletes)
	renderBucket(w, cyan("merge"), plan.Merges)
	renderBucket(w, yellow("conflict"), plan.Conflicts)
	renderBucket(w, yellow("diverged"), plan.Diverged)

	if verbose {
		renderBucket(w, gray("skip"), plan.Skips)
	} else if len(plan.Skips) > 0 {
		fmt.Fprintf(w, "%s %d up to date\n", gray("skip"), len(plan.Skips))
	}
	if n := plan.Ignored.Cardinality(); n > 0 && verbose {
		fmt.Fprintf(w, "%s %d ignored\n", gray("ignore"), n)
	}

	for _, err := range plan.Errors {
		fmt.Fprintf(w, "%s %v\n", errorLabel(), err)
	}

	if !plan.HasChanges() {
		fmt.Fprintln(w, bold("nothing to do"))
	}
}

func renderBucket(w io.Writer, label string, bucket map[string]*sync.Decision) {
	paths := make([]string, 0, len(bucket))
	for path := range bucket {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		d := bucket[path]
		fmt.Fprintf(w, "%s %s %s\n", label, path, gray("("+d.Reason+")"))
		if d.MergeResult != nil {
			for _, field := range d.MergeResult.ConflictFields() {
				fmt.Fprintf(w, "    %s %s\n", yellow("field"), field)
			}
		}
	}
}

// renderApply prints the outcome of an executed plan.
func renderApply(w io.Writer, result *sync.ApplyResult) {
	for _, path := range result.Copied {
		fmt.Fprintf(w, "%s %s\n", green("copied"), path)
	}
	for _, path := range result.Deleted {
		fmt.Fprintf(w, "%s %s\n", red("deleted"), path)
	}
	for _, path := range result.Merged {
		fmt.Fprintf(w, "%s %s\n", cyan("merged"), path)
	}
	for _, path := range result.Contributions {
		fmt.Fprintf(w, "%s %s\n", cyan("contribute"), path)
	}

	for _, d := range result.NeedsResolution {
		fmt.Fprintf(w, "%s %s %s\n", yellow("unresolved"), d.Path, gray("("+d.Reason+")"))
	}
	if len(result.NeedsResolution) > 0 {
		fmt.Fprintf(w, "%s resolve with --resolve <path>=<override|keep|merge|contribute>\n", bold("hint:"))
	}

	for _, err := range result.Errors {
		fmt.Fprintf(w, "%s %v\n", errorLabel(), err)
	}
}
