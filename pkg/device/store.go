package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FingerprintKey is the storage key the fingerprint is cached under.
const FingerprintKey = "device_fingerprint"

// KeyValue is durable key-value storage scoped to one client profile.
type KeyValue interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FingerprintStore caches the generated fingerprint. It enforces no expiry.
type FingerprintStore struct {
	kv       KeyValue
	env      Environment
	generate func(Environment) string
	mu       sync.Mutex
}

// NewFingerprintStore creates a store that generates from env on first use.
func NewFingerprintStore(kv KeyValue, env Environment) *FingerprintStore {
	return &FingerprintStore{
		kv:       kv,
		env:      env,
		generate: Generate,
	}
}

// Get returns the cached fingerprint, if any.
func (s *FingerprintStore) Get() (string, bool) {
	fp, ok, err := s.kv.Get(FingerprintKey)
	if err != nil {
		slog.Warn("Failed to read cached fingerprint", "error", err)
		return "", false
	}
	if !ok || fp == "" {
		return "", false
	}
	return fp, true
}

// Set caches fp.
func (s *FingerprintStore) Set(fp string) error {
	if fp == "" {
		return errors.New("fingerprint is empty")
	}
	return s.kv.Set(FingerprintKey, fp)
}

// GetOrCreate returns the cached fingerprint, generating and caching one on
// first use. The generator runs at most once per store.
func (s *FingerprintStore) GetOrCreate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fp, ok := s.Get(); ok {
		return fp, nil
	}

	fp := s.generate(s.env)
	if err := s.Set(fp); err != nil {
		return "", fmt.Errorf("failed to cache fingerprint: %w", err)
	}
	slog.Debug("Generated device fingerprint", "fingerprint", fp)
	return fp, nil
}

// MemoryKeyValue is a KeyValue held in memory.
type MemoryKeyValue struct {
	values map[string]string
	mu     sync.RWMutex
}

func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{values: make(map[string]string)}
}

func (m *MemoryKeyValue) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKeyValue) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Clear removes every key, as when a user clears site data.
func (m *MemoryKeyValue) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

// FileKeyValue is a KeyValue persisted as a JSON object in one file.
type FileKeyValue struct {
	path  string
	mutex sync.Mutex
}

func NewFileKeyValue(path string) (*FileKeyValue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileKeyValue{path: path}, nil
}

func (f *FileKeyValue) Get(key string) (string, bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileKeyValue) Set(key, value string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal values: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileKeyValue) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal values: %w", err)
	}
	return values, nil
}
