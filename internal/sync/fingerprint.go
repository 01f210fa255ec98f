package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AbsentFingerprint is the sentinel for a non-existent path. It is never
// equal to a real digest (digests are 32 hex chars).
const AbsentFingerprint = "absent"

const fingerprintCacheSize = 4096

type fpCacheEntry struct {
	size    int64
	modTime time.Time
	digest  string
}

// Fingerprinter computes content-addressable digests. Regular files and
// symlinks-to-files hash full byte content; symlinks to directories and
// broken symlinks hash the link target string, which keeps the digest stable
// even when the target is a directory or dangling. No locking: callers treat
// one planning pass as a consistent snapshot.
type Fingerprinter struct {
	cache *lru.Cache[string, fpCacheEntry]
}

func NewFingerprinter() *Fingerprinter {
	// error only fires for a non-positive size
	cache, _ := lru.New[string, fpCacheEntry](fingerprintCacheSize)
	return &Fingerprinter{cache: cache}
}

// Fingerprint digests the POSIX-relative path under root.
func (f *Fingerprinter) Fingerprint(root, relPath string) (string, error) {
	absPath := filepath.Join(root, filepath.FromSlash(relPath))

	switch ClassifyPath(absPath) {
	case KindAbsent:
		return AbsentFingerprint, nil
	case KindDir:
		return "", fmt.Errorf("fingerprint %s: is a directory", absPath)
	case KindSymlinkDir, KindSymlinkBroken:
		target, err := os.Readlink(absPath)
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", absPath, err)
		}
		return SymlinkFingerprint(target), nil
	default:
		return f.hashContent(absPath)
	}
}

// SymlinkFingerprint digests a link target string (never pointed-to content).
func SymlinkFingerprint(target string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte("symlink:"+target)))
}

// HashBytes digests raw content the same way file content is digested.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

func (f *Fingerprinter) hashContent(absPath string) (string, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", absPath, err)
	}

	if entry, ok := f.cache.Get(absPath); ok {
		if entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.digest, nil
		}
	}

	file, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", absPath, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", absPath, err)
	}
	digest := fmt.Sprintf("%x", h.Sum(nil))

	f.cache.Add(absPath, fpCacheEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		digest:  digest,
	})
	return digest, nil
}
