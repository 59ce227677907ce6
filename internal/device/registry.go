package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the write operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by name
	cacheMu sync.RWMutex       // Protects cache
	writeMu sync.Mutex         // Serialises writes and read-modify-write cycles
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].Name] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by name.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, name string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[name]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Might have been written by another process since the last refresh.
	device, err := r.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[name] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) == 0 {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int { return strings.Compare(a.Name, b.Name) })
	return devices, nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// SaveDevice validates and persists a whole device record, replacing any
// previous version. CreatedAt is kept from the caller when set.
func (r *Registry) SaveDevice(ctx context.Context, device *Device) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.save(ctx, device)
}

// save must be called with writeMu held.
func (r *Registry) save(ctx context.Context, device *Device) error {
	if device.Protocol == "" {
		device.Protocol = ProtocolIR
	}
	normalizeLearned(device)
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	if err := r.repo.Save(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.Name] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device saved", "name", device.Name, "protocol", device.Protocol)
	return nil
}

// MergeDevice deep-merges patch into the stored record for name and saves
// the result. Nested objects merge key by key; any other value replaces the
// previous one and absent keys are inherited. A missing device is created
// from the patch alone.
//
// Changing the protocol of an existing device fails with ErrProtocolImmutable.
func (r *Registry) MergeDevice(ctx context.Context, name string, patch map[string]any) (*Device, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	patch = normalizePatch(patch)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.GetDevice(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrDeviceNotFound):
		current = nil
	default:
		return nil, err
	}

	base := map[string]any{}
	if current != nil {
		if raw, ok := patch["protocol"]; ok {
			tag, isString := raw.(string)
			if !isString {
				return nil, fmt.Errorf("%w: protocol must be a string", ErrInvalidDevice)
			}
			if ParseProtocol(tag) != current.Protocol {
				return nil, fmt.Errorf("%w: %s is %s", ErrProtocolImmutable, name, current.Protocol)
			}
		}
		if base, err = toDocument(current); err != nil {
			return nil, err
		}
	}

	merged := deepMerge(base, patch)
	merged["name"] = name
	delete(merged, "created_at")
	delete(merged, "updated_at")

	device, err := fromDocument(merged)
	if err != nil {
		return nil, err
	}
	if current != nil {
		device.CreatedAt = current.CreatedAt
	}

	if err := r.save(ctx, device); err != nil {
		return nil, err
	}
	return device.DeepCopy(), nil
}

// UpdateDevice re-reads the record for name under the write lock, passes a
// copy to fn and saves what fn returns. current is nil when the device does
// not exist. An error from fn aborts the update and is returned unchanged.
//
// fn must not change the protocol of an existing device; doing so fails with
// ErrProtocolImmutable.
func (r *Registry) UpdateDevice(ctx context.Context, name string, fn func(current *Device) (*Device, error)) (*Device, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.GetDevice(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrDeviceNotFound):
		current = nil
	default:
		return nil, err
	}

	var createdAt time.Time
	var protocol Protocol
	if current != nil {
		createdAt = current.CreatedAt
		protocol = current.Protocol
	}

	device, err := fn(current)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no device returned for %s", ErrInvalidDevice, name)
	}
	device.Name = name
	if current != nil {
		if device.Protocol == "" {
			device.Protocol = protocol
		}
		if device.Protocol != protocol {
			return nil, fmt.Errorf("%w: %s is %s", ErrProtocolImmutable, name, protocol)
		}
		device.CreatedAt = createdAt
	}

	if err := r.save(ctx, device); err != nil {
		return nil, err
	}
	return device.DeepCopy(), nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, name)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "name", name)
	return nil
}

// ReplaceAll validates devices and swaps them in as the complete registry.
// Nothing is written when any device is invalid.
func (r *Registry) ReplaceAll(ctx context.Context, devices []Device) error {
	seen := make(map[string]bool, len(devices))
	for i := range devices {
		if devices[i].Protocol == "" {
			devices[i].Protocol = ProtocolIR
		}
		normalizeLearned(&devices[i])
		if err := ValidateDevice(&devices[i]); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		if seen[devices[i].Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidDevice, devices[i].Name)
		}
		seen[devices[i].Name] = true
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.ReplaceAll(ctx, devices); err != nil {
		return err
	}
	return r.RefreshCache(ctx)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int              `json:"total_devices"`
	ByProtocol   map[Protocol]int `json:"by_protocol"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByProtocol:   make(map[Protocol]int),
	}
	for _, d := range r.cache {
		stats.ByProtocol[d.Protocol]++
	}
	return stats
}
