package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const devicesFileName = "devices.json"

// FileDeviceRepository implements DeviceRepository using file-based storage
type FileDeviceRepository struct {
	dataDir string
	devices map[string]*RegisteredDevice // Key: fingerprint
	mutex   sync.RWMutex
}

// deviceData represents the structure of data stored in the JSON file
type deviceData struct {
	Devices []*RegisteredDevice `json:"devices"`
}

// NewFileDeviceRepository creates a new file-based device repository
func NewFileDeviceRepository(dataDir string) (*FileDeviceRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileDeviceRepository{
		dataDir: dataDir,
		devices: make(map[string]*RegisteredDevice),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

func (r *FileDeviceRepository) CreateDevice(ctx context.Context, device RegisteredDevice) (RegisteredDevice, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[device.Fingerprint]; exists {
		return RegisteredDevice{}, ErrDeviceExists
	}

	deviceCopy := device
	r.devices[device.Fingerprint] = &deviceCopy

	if err := r.save(); err != nil {
		delete(r.devices, device.Fingerprint)
		return RegisteredDevice{}, fmt.Errorf("failed to save: %w", err)
	}

	return device, nil
}

func (r *FileDeviceRepository) RefreshDevice(ctx context.Context, refresh DeviceRefresh) (RegisteredDevice, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, exists := r.devices[refresh.Fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	if err := refusal(*previous, refresh); err != nil {
		return RegisteredDevice{}, err
	}

	deviceCopy := *previous
	deviceCopy.apply(refresh)
	return r.replace(previous, &deviceCopy)
}

func (r *FileDeviceRepository) SetBlockState(ctx context.Context, fingerprint string, state BlockState) (RegisteredDevice, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, exists := r.devices[fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}

	deviceCopy := *previous
	deviceCopy.applyBlock(state)
	return r.replace(previous, &deviceCopy)
}

// replace stores next and restores previous when saving fails. Callers hold the lock.
func (r *FileDeviceRepository) replace(previous, next *RegisteredDevice) (RegisteredDevice, error) {
	r.devices[next.Fingerprint] = next
	if err := r.save(); err != nil {
		r.devices[next.Fingerprint] = previous
		return RegisteredDevice{}, fmt.Errorf("failed to save: %w", err)
	}
	return *next, nil
}

func (r *FileDeviceRepository) GetDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	device, exists := r.devices[fingerprint]
	if !exists {
		return RegisteredDevice{}, ErrDeviceNotFound
	}

	return *device, nil
}

func (r *FileDeviceRepository) FindDevicesByAccount(ctx context.Context, accountID uuid.UUID) ([]RegisteredDevice, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]RegisteredDevice, 0)
	for _, device := range r.devices {
		if device.IsOwnedBy(accountID) {
			devices = append(devices, *device)
		}
	}
	sortByCreated(devices)

	return devices, nil
}

func (r *FileDeviceRepository) FindDevices(ctx context.Context) ([]RegisteredDevice, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]RegisteredDevice, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, *device)
	}
	sortByCreated(devices)

	return devices, nil
}

// load reads data from the JSON file
func (r *FileDeviceRepository) load() error {
	filePath := filepath.Join(r.dataDir, devicesFileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var fileData deviceData
	if err := json.Unmarshal(data, &fileData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, device := range fileData.Devices {
		r.devices[device.Fingerprint] = device
	}

	return nil
}

// save writes data to the JSON file atomically
func (r *FileDeviceRepository) save() error {
	filePath := filepath.Join(r.dataDir, devicesFileName)

	fileData := deviceData{
		Devices: make([]*RegisteredDevice, 0, len(r.devices)),
	}
	for _, device := range r.devices {
		fileData.Devices = append(fileData.Devices, device)
	}

	data, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
