package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// ErrFactoryNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrFactoryNotRegistered = errors.New("config: factory not registered")

// DeviceFactory builds an audio device from its configuration.
type DeviceFactory func(DeviceConfig) (audio.Device, error)

// ProcessorFactory builds a reverse processor. target is the format the tap
// delivers blocks in.
type ProcessorFactory func(cfg ProcessorConfig, target audio.Format) (reverse.Processor, error)

// Registry maps component names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]DeviceFactory
	processors map[string]ProcessorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[string]DeviceFactory),
		processors: make(map[string]ProcessorFactory),
	}
}

// RegisterDevice registers a device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// RegisterProcessor registers a processor factory under name.
func (r *Registry) RegisterProcessor(name string, factory ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = factory
}

// CreateDevice instantiates a device using the factory registered under cfg.Name.
// Returns [ErrFactoryNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateDevice(cfg DeviceConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.devices[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrFactoryNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateProcessor instantiates a processor using the factory registered under cfg.Name.
func (r *Registry) CreateProcessor(cfg ProcessorConfig, target audio.Format) (reverse.Processor, error) {
	r.mu.RLock()
	factory, ok := r.processors[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: processor/%q", ErrFactoryNotRegistered, cfg.Name)
	}
	return factory(cfg, target)
}
