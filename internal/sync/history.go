package sync

// TemplateHistory answers questions about the template at the last recorded
// sync point. A nil history degrades the planner to its safe-copy branch and
// manifest merges to 2-way.
type TemplateHistory interface {
	// ExistedAtLastSync reports whether path already existed in the template
	// at the last recorded sync point.
	ExistedAtLastSync(path string) (bool, error)

	// ManifestBase returns the manifest content at the last synced template
	// revision, or nil when no base is available.
	ManifestBase(path string) ([]byte, error)
}

// StoreHistory serves manifest bases out of the baseline store, which records
// the template side of every manifest it merges. It cannot see further back
// than the store does: for paths the store never tracked it reports
// non-existence, so version-control backed implementations remain strictly
// more informed.
type StoreHistory struct {
	store *BaselineStore
}

func NewStoreHistory(store *BaselineStore) *StoreHistory {
	return &StoreHistory{store: store}
}

func (h *StoreHistory) ExistedAtLastSync(path string) (bool, error) {
	// the planner only asks when the baseline lacks the path, and this store
	// is the baseline; nothing older is recorded here
	return false, nil
}

func (h *StoreHistory) ManifestBase(path string) ([]byte, error) {
	return h.store.GetManifestBase(path)
}
