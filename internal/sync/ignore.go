package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/gileck/templatesync/internal/utils"
)

// IgnoreFileName is an optional gitignore-style file in the project root.
const IgnoreFileName = ".templatesyncignore"

var defaultIgnoreLines = []string{
	// engine state
	".templatesync/",
	".templatesync.yaml",
	IgnoreFileName,
	"*.template",
	// vcs
	".git/",
	// js tooling
	"node_modules/",
	"dist/",
	"build/",
	".next/",
	"coverage/",
	// IDE/Editor-specific
	".vscode",
	".idea",
	// general excludes
	"*.tmp",
	"*.log",
	"logs/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList excludes paths from sync entirely: built-in noise plus an
// optional per-project ignore file.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	list := &IgnoreList{baseDir: baseDir}
	list.Load()
	return list
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func (s *IgnoreList) ShouldIgnore(path string) bool {
	return s.ignore.MatchesPath(path)
}
