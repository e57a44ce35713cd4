// Package module provides the registry of module types and the manager of
// module instances. A module type is registered once, usually from init
// function of its package, and instances are created from configuration.
package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/config"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/signalpath"
)

var (
	// ErrUnknownType is returned when module type isn't registered.
	ErrUnknownType = errors.New("unknown module type")
	// ErrInstanceExists is returned when instance name is taken.
	ErrInstanceExists = errors.New("module instance already exists")
	// ErrInstanceNotFound is returned when instance doesn't exist.
	ErrInstanceNotFound = errors.New("module instance not found")
)

type (
	// Env is passed to module instances.
	Env struct {
		Path   *signalpath.SignalPath
		Log    logrus.FieldLogger
		Metric *metric.Metric
	}

	// Instance is a running module.
	Instance interface {
		Start()
		Stop()
		// Close releases all resources of the instance, including VFO.
		Close() error
	}

	// Module is a module type.
	Module struct {
		Type string
		// Init is called before the first instance is created. Optional.
		Init func() error
		// Create returns a new instance.
		Create func(name string, cfg config.Module, env Env) (Instance, error)
		// End is called when the manager that initialized the type is closed.
		// Optional.
		End func()
	}
)

var registry = struct {
	sync.Mutex
	modules map[string]Module
}{
	modules: make(map[string]Module),
}

// Register adds module type to the registry. Registering the same type
// twice is a wiring bug and causes a panic.
func Register(m Module) {
	if m.Type == "" || m.Create == nil {
		panic("module: type and create function are required")
	}
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.modules[m.Type]; ok {
		panic(fmt.Sprintf("module: %s registered twice", m.Type))
	}
	registry.modules[m.Type] = m
}

// Lookup returns registered module type.
func Lookup(typ string) (Module, bool) {
	registry.Lock()
	defer registry.Unlock()
	m, ok := registry.modules[typ]
	return m, ok
}

// Types returns sorted names of registered types.
func Types() []string {
	registry.Lock()
	defer registry.Unlock()
	types := make([]string, 0, len(registry.modules))
	for t := range registry.modules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type instance struct {
	typ string
	Instance
}

// Manager owns module instances.
type Manager struct {
	env Env

	mu        sync.Mutex
	instances map[string]instance
	order     []string
	inited    map[string]Module
	running   bool
}

// NewManager returns manager that creates instances in provided
// environment.
func NewManager(env Env) *Manager {
	if env.Log == nil {
		env.Log = logrus.StandardLogger()
	}
	return &Manager{
		env:       env,
		instances: make(map[string]instance),
		inited:    make(map[string]Module),
	}
}

// Create makes a new instance. It's started if manager is running.
func (m *Manager) Create(cfg config.Module) error {
	mod, ok := Lookup(cfg.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[cfg.Name]; ok {
		return fmt.Errorf("%w: %s", ErrInstanceExists, cfg.Name)
	}
	if _, ok := m.inited[mod.Type]; !ok {
		if mod.Init != nil {
			if err := mod.Init(); err != nil {
				return fmt.Errorf("init module %s: %w", mod.Type, err)
			}
		}
		m.inited[mod.Type] = mod
	}
	env := m.env
	env.Log = m.env.Log.WithFields(logrus.Fields{
		"module":   mod.Type,
		"instance": cfg.Name,
	})
	inst, err := mod.Create(cfg.Name, cfg, env)
	if err != nil {
		return fmt.Errorf("create %s: %w", cfg.Name, err)
	}
	m.instances[cfg.Name] = instance{typ: mod.Type, Instance: inst}
	m.order = append(m.order, cfg.Name)
	if m.running {
		inst.Start()
	}
	env.Log.Info("module instance created")
	return nil
}

// Destroy closes the instance and removes it from the manager.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	delete(m.instances, name)
	for i := range m.order {
		if m.order[i] == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.env.Log.WithField("instance", name).Info("module instance destroyed")
	return inst.Close()
}

// Start starts all instances.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		m.instances[name].Start()
	}
	m.running = true
}

// Stop stops all instances.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		m.instances[name].Stop()
	}
	m.running = false
}

// Close closes all instances and ends initialized module types. Errors of
// all instances are returned.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs sdr.Errors
	for _, name := range m.order {
		if err := m.instances[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	m.instances = make(map[string]instance)
	m.order = nil
	for t, mod := range m.inited {
		if mod.End != nil {
			mod.End()
		}
		delete(m.inited, t)
	}
	m.running = false
	return errs.Ret()
}

// Names returns instance names in order of creation.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Instance returns instance by name.
func (m *Manager) Instance(name string) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[name]
	return inst.Instance, ok
}

// Buffered returns number of unprocessed samples of instances that report
// it.
func (m *Manager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, inst := range m.instances {
		if b, ok := inst.Instance.(interface{ Buffered() int }); ok {
			n += b.Buffered()
		}
	}
	return n
}
