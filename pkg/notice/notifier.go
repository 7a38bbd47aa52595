// Package notice delivers security notifications such as a device being
// blocked after repeated PIN failures. Delivery failures are reported to the
// caller but must never interrupt the security flow that triggered them.
package notice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeviceBlocked describes a device that was blocked.
type DeviceBlocked struct {
	AccountID   uuid.UUID
	Email       string
	Fingerprint string
	DeviceName  string
	Reason      string
	BlockedAt   time.Time
}

// DeviceBlockedNotifier sends device-blocked notifications.
type DeviceBlockedNotifier interface {
	NotifyDeviceBlocked(ctx context.Context, n DeviceBlocked) error
}

// NoopNotifier discards every notification.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (NoopNotifier) NotifyDeviceBlocked(ctx context.Context, n DeviceBlocked) error {
	return nil
}

// MockNotifier records notifications in memory, for tests and local runs.
type MockNotifier struct {
	mu   sync.Mutex
	sent []DeviceBlocked
	Err  error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) NotifyDeviceBlocked(ctx context.Context, n DeviceBlocked) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (m *MockNotifier) Sent() []DeviceBlocked {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceBlocked, len(m.sent))
	copy(out, m.sent)
	return out
}
