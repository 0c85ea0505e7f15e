// internal/driver/registry.go
package driver

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"lora-config-service/internal/model"
	"lora-config-service/pkg/lora/register"
	"lora-config-service/pkg/lora/session"
)

// Factory creates a driver for a registered module
type Factory func(module *model.Module, variant register.Variant, opts session.Options, logger *zap.Logger) (ModuleDriver, error)

// Registry maps variant profiles to driver factories
type Registry struct {
	drivers map[string]Factory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]Factory),
		logger:  logger,
	}
}

// Register registers a driver factory for a variant name. "*" matches any
// variant not registered explicitly.
func (r *Registry) Register(variantName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[variantName] = factory
	r.logger.Info("Driver registered", zap.String("variant", variantName))
}

// CreateDriver creates a driver instance for a module
func (r *Registry) CreateDriver(module *model.Module, opts session.Options) (ModuleDriver, error) {
	variant, ok := register.VariantByName(module.Variant)
	if !ok {
		return nil, fmt.Errorf("unknown variant: %s", module.Variant)
	}

	r.mu.RLock()
	factory, exists := r.drivers[variant.Name]
	if !exists {
		factory, exists = r.drivers["*"]
	}
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver registered for variant %s", variant.Name)
	}
	return factory(module, variant, opts, r.logger)
}

// IsSupported checks whether a variant has a registered driver
func (r *Registry) IsSupported(variantName string) bool {
	if _, ok := register.VariantByName(variantName); !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.drivers[variantName]; exists {
		return true
	}
	_, exists := r.drivers["*"]
	return exists
}

// ListVariants returns every variant with an explicitly registered driver
func (r *Registry) ListVariants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		if name != "*" {
			names = append(names, name)
		}
	}
	return names
}
