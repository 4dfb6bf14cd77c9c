package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/aurora/engine/core"
)

// CvarStore holds the runtime-tunable named variables consumed by the
// renderer (render scales, quality tiers, feature toggles). Components
// register the cvars they own at initialization; readers only ever see
// typed snapshots, never the store internals.
type CvarStore struct {
	mu   sync.RWMutex
	vars map[string]*cvar

	watcher *fileWatcher
}

type cvar struct {
	name  string
	help  string
	value interface{}
}

func NewCvarStore() *CvarStore {
	return &CvarStore{
		vars: make(map[string]*cvar),
	}
}

func (s *CvarStore) RegisterInt(name, help string, def int) {
	s.register(name, help, def)
}

func (s *CvarStore) RegisterFloat(name, help string, def float64) {
	s.register(name, help, def)
}

func (s *CvarStore) RegisterBool(name, help string, def bool) {
	s.register(name, help, def)
}

func (s *CvarStore) register(name, help string, def interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.vars[name]; ok {
		core.LogWarn("cvar '%s' registered twice, keeping value %v", name, existing.value)
		existing.help = help
		return
	}
	s.vars[name] = &cvar{name: name, help: help, value: def}
}

func (s *CvarStore) Int(name string) int {
	v, ok := s.lookup(name).(int)
	if !ok {
		core.LogWarn("cvar '%s' read as int but holds another type", name)
	}
	return v
}

func (s *CvarStore) Float(name string) float64 {
	v, ok := s.lookup(name).(float64)
	if !ok {
		core.LogWarn("cvar '%s' read as float but holds another type", name)
	}
	return v
}

func (s *CvarStore) Bool(name string) bool {
	v, ok := s.lookup(name).(bool)
	if !ok {
		core.LogWarn("cvar '%s' read as bool but holds another type", name)
	}
	return v
}

func (s *CvarStore) lookup(name string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	if !ok {
		core.LogWarn("cvar '%s' read before registration", name)
		return nil
	}
	return v.value
}

// Set overrides a registered cvar, coercing to the registered type.
// Owning components register before any file load, so unknown names are
// reported and dropped.
func (s *CvarStore) Set(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return fmt.Errorf("cvar '%s' is not registered", name)
	}
	coerced, err := coerce(v.value, value)
	if err != nil {
		return fmt.Errorf("cvar '%s': %w", name, err)
	}
	v.value = coerced
	return nil
}

func coerce(current, incoming interface{}) (interface{}, error) {
	switch current.(type) {
	case int:
		switch n := incoming.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		}
	case float64:
		switch n := incoming.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case bool:
		if b, ok := incoming.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot assign %T over %T", incoming, current)
}

// LoadFile applies overrides from a TOML file. Keys are cvar names, values
// must match the registered types.
func (s *CvarStore) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cvar file '%s': %w", path, err)
	}

	overrides := make(map[string]interface{})
	if err := toml.Unmarshal(content, &overrides); err != nil {
		return fmt.Errorf("failed to parse cvar file '%s': %w", path, err)
	}

	for name, value := range overrides {
		if err := s.Set(name, value); err != nil {
			core.LogWarn("cvar file '%s': %s", path, err.Error())
			continue
		}
		core.LogDebug("cvar '%s' set to %v from '%s'", name, value, path)
	}
	return nil
}

// Names returns the registered cvar names with their help strings,
// for console/editor listings.
func (s *CvarStore) Names() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for name, v := range s.vars {
		out[name] = v.help
	}
	return out
}
