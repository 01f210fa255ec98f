package sync

import (
	"os"
	"path/filepath"
)

// PathKind classifies what sits at a path before it is fingerprinted or
// copied. Symlinks are never dereferenced for content.
type PathKind int

const (
	KindAbsent PathKind = iota
	KindFile
	KindDir
	KindSymlinkFile
	KindSymlinkDir
	KindSymlinkBroken
)

func (k PathKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlinkFile:
		return "symlink-to-file"
	case KindSymlinkDir:
		return "symlink-to-dir"
	case KindSymlinkBroken:
		return "broken-symlink"
	default:
		return "unknown"
	}
}

// IsSymlink reports whether the kind is any of the symlink variants.
func (k PathKind) IsSymlink() bool {
	return k == KindSymlinkFile || k == KindSymlinkDir || k == KindSymlinkBroken
}

// Exists reports whether anything sits at the path.
func (k PathKind) Exists() bool {
	return k != KindAbsent
}

// ClassifyPath inspects absPath without following non-symlink indirection.
func ClassifyPath(absPath string) PathKind {
	info, err := os.Lstat(absPath)
	if err != nil {
		return KindAbsent
	}

	if info.Mode()&os.ModeSymlink == 0 {
		if info.IsDir() {
			return KindDir
		}
		return KindFile
	}

	// symlink: classify by what it points at
	target, err := os.Stat(absPath)
	if err != nil {
		return KindSymlinkBroken
	}
	if target.IsDir() {
		return KindSymlinkDir
	}
	return KindSymlinkFile
}

// ClassifyRel classifies a POSIX-relative path under root.
func ClassifyRel(root, relPath string) PathKind {
	return ClassifyPath(filepath.Join(root, filepath.FromSlash(relPath)))
}
