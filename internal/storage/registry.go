package storage

import "fmt"

// Registry maps disk names to Storage backends. Disks are registered once at
// boot; lookups after that are read-only, so no locking is needed.
type Registry struct {
	disks       map[string]Storage
	defaultDisk string
}

// NewRegistry creates an empty registry with the given default disk name.
func NewRegistry(defaultDisk string) *Registry {
	return &Registry{
		disks:       make(map[string]Storage),
		defaultDisk: defaultDisk,
	}
}

// Register adds a named disk. Registering the same name twice replaces the
// previous backend.
func (r *Registry) Register(name string, s Storage) {
	r.disks[name] = s
}

// Disk resolves a disk by name; an empty name resolves the default disk.
func (r *Registry) Disk(name string) (Storage, error) {
	if name == "" {
		name = r.defaultDisk
	}
	s, ok := r.disks[name]
	if !ok {
		return nil, fmt.Errorf("unknown disk %q", name)
	}
	return s, nil
}

// DefaultDisk returns the default disk name.
func (r *Registry) DefaultDisk() string {
	return r.defaultDisk
}
