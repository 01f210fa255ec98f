package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gileck/templatesync/internal/config"
	"github.com/gileck/templatesync/internal/utils"
)

const (
	metadataDir = ".templatesync"
	lockFile    = "templatesync.lock"
	baselineDB  = "baseline.db"
)

var (
	ErrWorkspaceLocked = errors.New("project locked by another templatesync process")
)

// Workspace holds the resolved project and template roots plus the metadata
// locations the engine persists state in.
type Workspace struct {
	ProjectRoot  string
	TemplateRoot string
	MetadataDir  string
	ConfigPath   string
	BaselinePath string

	flock *flock.Flock
}

func New(projectDir, templateDir string) (*Workspace, error) {
	projectRoot, err := utils.ResolvePath(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir %s: %w", projectDir, err)
	}
	templateRoot, err := utils.ResolvePath(templateDir)
	if err != nil {
		return nil, fmt.Errorf("resolve template dir %s: %w", templateDir, err)
	}

	metaDir := filepath.Join(projectRoot, metadataDir)

	return &Workspace{
		ProjectRoot:  projectRoot,
		TemplateRoot: templateRoot,
		MetadataDir:  metaDir,
		ConfigPath:   filepath.Join(projectRoot, config.DefaultConfigName),
		BaselinePath: filepath.Join(metaDir, baselineDB),
		flock:        flock.New(filepath.Join(metaDir, lockFile)),
	}, nil
}

// Lock creates the metadata dir and takes an exclusive file lock so two runs
// cannot mutate the same project concurrently.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create metadata dir %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock project: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock project: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Setup validates both roots exist and acquires the run lock.
func (w *Workspace) Setup() error {
	if !utils.DirExists(w.ProjectRoot) {
		return fmt.Errorf("project dir does not exist: %s", w.ProjectRoot)
	}
	if !utils.DirExists(w.TemplateRoot) {
		return fmt.Errorf("template dir does not exist: %s", w.TemplateRoot)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "project", w.ProjectRoot, "template", w.TemplateRoot)
	return nil
}
