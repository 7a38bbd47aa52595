package trust

import (
	"net/http"
	"sync"
	"time"
)

const (
	DeviceMarker      = "device_id"
	PinVerifiedMarker = "pin_verified"

	DefaultDeviceMarkerTTL      = 365 * 24 * time.Hour
	DefaultPinVerifiedMarkerTTL = 24 * time.Hour
)

// Markers is a small client-side key/value store with per-entry lifetimes.
type Markers interface {
	Get(name string) (string, bool)
	Set(name, value string, ttl time.Duration)
	Clear(name string)
}

// Change is a marker write not yet delivered to the client.
type Change struct {
	Name      string
	Value     string
	ExpiresAt time.Time
	Cleared   bool
}

type marker struct {
	value     string
	expiresAt time.Time
}

// MemoryMarkers is a Markers that remembers its changes so they can be
// delivered to the client, usually as cookies.
type MemoryMarkers struct {
	mu      sync.Mutex
	values  map[string]marker
	pending []Change
	now     func() time.Time
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{
		values: make(map[string]marker),
		now:    time.Now,
	}
}

// MarkersFromRequest seeds markers from the request cookies. Browsers do not
// send cookie expiry, so seeded markers never expire server-side.
func MarkersFromRequest(r *http.Request) *MemoryMarkers {
	m := NewMemoryMarkers()
	for _, name := range []string{DeviceMarker, PinVerifiedMarker} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			m.values[name] = marker{value: c.Value}
		}
	}
	return m
}

func (m *MemoryMarkers) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.values[name]
	if !ok {
		return "", false
	}
	if !mk.expiresAt.IsZero() && !m.now().Before(mk.expiresAt) {
		delete(m.values, name)
		return "", false
	}
	return mk.value, true
}

func (m *MemoryMarkers) Set(name, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	m.values[name] = marker{value: value, expiresAt: expiresAt}
	m.pending = append(m.pending, Change{Name: name, Value: value, ExpiresAt: expiresAt})
}

func (m *MemoryMarkers) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, name)
	m.pending = append(m.pending, Change{Name: name, Cleared: true})
}

// Flush returns and forgets the pending changes in the order they were made.
func (m *MemoryMarkers) Flush() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := m.pending
	m.pending = nil
	return changes
}
