package device

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemDeviceRepository implements DeviceRepository using an in-memory map
type InMemDeviceRepository struct {
	devices map[string]RegisteredDevice
	mu      sync.RWMutex
}

// NewInMemDeviceRepository creates a new in-memory device repository
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices: make(map[string]RegisteredDevice),
	}
}

func (r *InMemDeviceRepository) CreateDevice(ctx context.Context, device RegisteredDevice) (RegisteredDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.Fingerprint]; exists {
		return RegisteredDevice{}, ErrDeviceExists
	}

	r.devices[device.Fingerprint] = device
	slog.Debug("Device created", "fingerprint", device.Fingerprint)
	return device, nil
}

func (r *InMemDeviceRepository) RefreshDevice(ctx context.Context, refresh DeviceRefresh) (RegisteredDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[refresh.Fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	if err := refusal(device, refresh); err != nil {
		return RegisteredDevice{}, err
	}
	device.apply(refresh)
	r.devices[refresh.Fingerprint] = device
	return device, nil
}

func (r *InMemDeviceRepository) SetBlockState(ctx context.Context, fingerprint string, state BlockState) (RegisteredDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	device.applyBlock(state)
	r.devices[fingerprint] = device
	return device, nil
}

func (r *InMemDeviceRepository) GetDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	return device, nil
}

func (r *InMemDeviceRepository) FindDevicesByAccount(ctx context.Context, accountID uuid.UUID) ([]RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]RegisteredDevice, 0)
	for _, device := range r.devices {
		if device.IsOwnedBy(accountID) {
			devices = append(devices, device)
		}
	}
	sortByCreated(devices)

	slog.Debug("Found devices for account", "accountID", accountID, "deviceCount", len(devices))
	return devices, nil
}

func (r *InMemDeviceRepository) FindDevices(ctx context.Context) ([]RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]RegisteredDevice, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}
	sortByCreated(devices)
	return devices, nil
}

func sortByCreated(devices []RegisteredDevice) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].Fingerprint < devices[j].Fingerprint
		}
		return devices[i].CreatedAt.Before(devices[j].CreatedAt)
	})
}
