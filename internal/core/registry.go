package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAlreadyConfigured is returned when adopting an address that
	// already has a config entry.
	ErrAlreadyConfigured = errors.New("device already configured")

	// ErrDeviceNotFound is returned for operations on unknown
	// addresses.
	ErrDeviceNotFound = errors.New("device not found")
)

// Entry is one persisted device configuration, keyed by MAC address.
type Entry struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Area      string    `json:"area,omitempty"`
	AdoptedAt time.Time `json:"adopted_at"`
}

// Registry persists config entries to a JSON file and answers
// membership queries for the setup flow.
type Registry struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

type registryFile struct {
	SchemaVersion int     `json:"schema_version"`
	Entries       []Entry `json:"entries"`
}

const registrySchemaVersion = 1

// LoadRegistry reads the registry file, creating an empty registry if
// the file does not exist yet.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	for _, entry := range file.Entries {
		r.entries[normalizeAddress(entry.Address)] = entry
	}
	return r, nil
}

// Adopt creates a config entry for a discovered device. The address
// is the unique id; adopting a configured address fails.
func (r *Registry) Adopt(entry Entry) error {
	if entry.Address == "" {
		return fmt.Errorf("address is required")
	}
	key := normalizeAddress(entry.Address)
	entry.Address = key
	if entry.AdoptedAt.IsZero() {
		entry.AdoptedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyConfigured, key)
	}
	r.entries[key] = entry
	return r.save()
}

// Remove deletes a config entry.
func (r *Registry) Remove(address string) error {
	key := normalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	delete(r.entries, key)
	return r.save()
}

// Get returns the entry for an address.
func (r *Registry) Get(address string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[normalizeAddress(address)]
	return entry, ok
}

// Has reports whether an address is configured.
func (r *Registry) Has(address string) bool {
	_, ok := r.Get(address)
	return ok
}

// List returns all config entries sorted by address.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries
}

// Addresses returns the configured address set, for discovery
// filtering.
func (r *Registry) Addresses() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make(map[string]bool, len(r.entries))
	for key := range r.entries {
		addrs[key] = true
	}
	return addrs
}

func (r *Registry) save() error {
	file := registryFile{SchemaVersion: registrySchemaVersion}
	for _, entry := range r.entries {
		file.Entries = append(file.Entries, entry)
	}
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].Address < file.Entries[j].Address })

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func normalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
