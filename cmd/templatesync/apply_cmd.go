package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gileck/templatesync/internal/manifest"
	"github.com/gileck/templatesync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newApplyCmd())
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Sync the project with its template",
		Long: `Plans and applies one sync pass. Conflicted and diverged paths are left
untouched and reported; replay them with --resolve. Manifest field conflicts
are answered per field with --resolve-field.`,
		RunE: runApply,
	}
	cmd.Flags().StringArray("resolve", nil,
		"Resolution for a conflicted path, as <path>=<override|keep|merge|contribute|none> (repeatable)")
	cmd.Flags().StringArray("resolve-field", nil,
		"Choice for a manifest field conflict, as <path>:<field>=<use-template|use-project|defer> (repeatable)")
	return cmd
}

func runApply(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	resolutions, err := parseResolutions(cmd)
	if err != nil {
		return err
	}
	fieldChoices, err := parseFieldChoices(cmd)
	if err != nil {
		return err
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	plan, planner, err := eng.plan()
	if err != nil {
		return err
	}

	exec := sync.NewExecutor(eng.ws.TemplateRoot, eng.ws.ProjectRoot, eng.cfg, eng.store, planner.Fingerprinter())
	result, err := exec.Apply(plan)
	if err != nil {
		return err
	}

	unresolved := result.NeedsResolution[:0]
	for _, d := range result.NeedsResolution {
		resolved, err := replayResolution(exec, d, resolutions, fieldChoices, result)
		if err != nil {
			result.Errors = append(result.Errors, err)
			unresolved = append(unresolved, d)
			continue
		}
		if !resolved {
			unresolved = append(unresolved, d)
		}
	}
	result.NeedsResolution = unresolved

	renderApply(cmd.OutOrStdout(), result)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d errors during apply", len(result.Errors))
	}
	return nil
}

// replayResolution answers one unresolved decision from the command-line
// maps. Returns false when no answer was supplied.
func replayResolution(exec *sync.Executor, d *sync.Decision, resolutions map[string]sync.Resolution, fieldChoices map[string]map[string]manifest.ConflictChoice, result *sync.ApplyResult) (bool, error) {
	if d.Action == sync.ActionMerge {
		choices, ok := fieldChoices[d.Path]
		if !ok {
			return false, nil
		}
		if err := exec.ResolveMergeConflicts(d, choices); err != nil {
			return false, err
		}
		return !d.MergeResult.HasConflicts(), nil
	}

	resolution, ok := resolutions[d.Path]
	if !ok {
		return false, nil
	}
	if err := exec.Resolve(d, resolution, result); err != nil {
		return false, err
	}
	return resolution != sync.ResolutionNone, nil
}

func parseResolutions(cmd *cobra.Command) (map[string]sync.Resolution, error) {
	raw, _ := cmd.Flags().GetStringArray("resolve")
	out := make(map[string]sync.Resolution, len(raw))
	for _, entry := range raw {
		path, value, ok := strings.Cut(entry, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --resolve %q, want <path>=<resolution>", entry)
		}
		resolution := sync.Resolution(value)
		switch resolution {
		case sync.ResolutionOverride, sync.ResolutionKeep, sync.ResolutionMerge,
			sync.ResolutionContribute, sync.ResolutionNone:
			out[path] = resolution
		default:
			return nil, fmt.Errorf("unknown resolution %q for %s", value, path)
		}
	}
	return out, nil
}

func parseFieldChoices(cmd *cobra.Command) (map[string]map[string]manifest.ConflictChoice, error) {
	raw, _ := cmd.Flags().GetStringArray("resolve-field")
	out := make(map[string]map[string]manifest.ConflictChoice)
	for _, entry := range raw {
		target, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --resolve-field %q, want <path>:<field>=<choice>", entry)
		}
		path, field, ok := strings.Cut(target, ":")
		if !ok || path == "" || field == "" {
			return nil, fmt.Errorf("invalid --resolve-field %q, want <path>:<field>=<choice>", entry)
		}
		choice := manifest.ConflictChoice(value)
		switch choice {
		case manifest.UseTemplate, manifest.UseProject, manifest.Defer:
		default:
			return nil, fmt.Errorf("unknown field choice %q for %s", value, target)
		}
		if out[path] == nil {
			out[path] = make(map[string]manifest.ConflictChoice)
		}
		out[path][field] = choice
	}
	return out, nil
}
