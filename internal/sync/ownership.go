package sync

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gileck/templatesync/internal/config"
)

// Classification is a path's ownership class for one run. Precedence is
// strict: ignored > override > owned > out-of-scope.
type Classification int

const (
	ClassOutOfScope Classification = iota
	ClassOwned
	ClassOverride
	ClassIgnored
)

func (c Classification) String() string {
	switch c {
	case ClassIgnored:
		return "ignored"
	case ClassOverride:
		return "override"
	case ClassOwned:
		return "owned"
	default:
		return "out-of-scope"
	}
}

// MatchPattern reports whether a POSIX-relative path matches an ownership
// pattern. Wildcard patterns are anchored globs: `*` matches within one path
// segment, `**` may cross directory boundaries. Patterns without wildcards
// additionally match as an exact path, a directory prefix, or a whole path
// segment anywhere in the path.
func MatchPattern(pattern, path string) bool {
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" || path == "" {
		return false
	}

	if strings.ContainsAny(pattern, "*?[") {
		ok, err := doublestar.Match(pattern, path)
		return err == nil && ok
	}

	// exact path
	if pattern == path {
		return true
	}
	// directory-style pattern: everything underneath it
	if strings.HasPrefix(path, pattern+"/") {
		return true
	}
	// pattern as a whole segment anywhere in the path
	return slices.Contains(strings.Split(path, "/"), pattern)
}

// MatchAny reports whether path matches any of the patterns.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if MatchPattern(p, path) {
			return true
		}
	}
	return false
}

// Resolver classifies paths against the ownership config and the ignore list.
type Resolver struct {
	cfg    *config.Config
	ignore *IgnoreList
}

func NewResolver(cfg *config.Config, ignore *IgnoreList) *Resolver {
	return &Resolver{cfg: cfg, ignore: ignore}
}

// Classify applies the precedence chain to one path.
func (r *Resolver) Classify(path string) Classification {
	if r.isIgnored(path) {
		return ClassIgnored
	}
	if r.cfg.IsOverride(path) {
		return ClassOverride
	}
	if MatchAny(r.cfg.TemplatePaths, path) {
		return ClassOwned
	}
	return ClassOutOfScope
}

func (r *Resolver) isIgnored(path string) bool {
	if MatchAny(r.cfg.TemplateIgnoredFiles, path) {
		return true
	}
	return r.ignore != nil && r.ignore.ShouldIgnore(path)
}

// ExpandPatterns filters a scanned tree down to the paths the patterns cover.
// Exact directory patterns expand recursively to their contained files.
func ExpandPatterns(patterns []string, tree map[string]*PathInfo) mapset.Set[string] {
	matched := mapset.NewThreadUnsafeSet[string]()
	for path := range tree {
		if MatchAny(patterns, path) {
			matched.Add(path)
		}
	}
	return matched
}
