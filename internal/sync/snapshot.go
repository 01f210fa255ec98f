package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gileck/templatesync/internal/utils"
)

// PathInfo describes one tree entry at scan time. Directories are not
// entries, but symlinks to directories are (they sync as links).
type PathInfo struct {
	RelPath string
	Kind    PathKind
	Size    int64
	ModTime time.Time
}

// skipDirNames are never descended into regardless of ignore config.
var skipDirNames = map[string]bool{
	".git":          true,
	".templatesync": true,
	"node_modules":  true,
}

// TreeScanner walks one root and produces a path snapshot.
type TreeScanner struct {
	root string
}

func NewTreeScanner(root string) *TreeScanner {
	return &TreeScanner{root: root}
}

// Scan walks the tree. Per-path errors (permission denied, mid-scan
// disappearance) are collected and do not abort the scan.
func (s *TreeScanner) Scan() (map[string]*PathInfo, []error) {
	state := make(map[string]*PathInfo)
	var errs []error

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", path, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != s.root && skipDirNames[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan rel path %s: %w", path, err))
			return nil
		}
		relPath = utils.NormPath(relPath)

		kind := KindFile
		if d.Type()&fs.ModeSymlink != 0 {
			kind = ClassifyPath(path)
		}

		info, err := os.Lstat(path)
		if err != nil {
			// vanished mid-scan
			slog.Warn("path vanished during scan", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("scan %s: %w", path, err))
			return nil
		}

		state[relPath] = &PathInfo{
			RelPath: relPath,
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("scan %s: %w", s.root, err))
	}

	return state, errs
}
