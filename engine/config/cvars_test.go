package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCvarDefaults(t *testing.T) {
	s := NewCvarStore()
	s.RegisterInt("test.quality", "quality tier", 1)
	s.RegisterFloat("test.scale", "render scale", 0.25)
	s.RegisterBool("test.enabled", "feature toggle", true)

	if got := s.Int("test.quality"); got != 1 {
		t.Fatalf("Int = %d, want 1", got)
	}
	if got := s.Float("test.scale"); got != 0.25 {
		t.Fatalf("Float = %v, want 0.25", got)
	}
	if !s.Bool("test.enabled") {
		t.Fatal("Bool = false, want true")
	}
}

func TestCvarSetCoercion(t *testing.T) {
	tests := []struct {
		name     string
		register func(s *CvarStore)
		set      interface{}
		check    func(t *testing.T, s *CvarStore)
		wantErr  bool
	}{
		{
			name:     "int from int64",
			register: func(s *CvarStore) { s.RegisterInt("v", "", 0) },
			set:      int64(3),
			check: func(t *testing.T, s *CvarStore) {
				if got := s.Int("v"); got != 3 {
					t.Fatalf("Int = %d, want 3", got)
				}
			},
		},
		{
			name:     "float from int64",
			register: func(s *CvarStore) { s.RegisterFloat("v", "", 0) },
			set:      int64(2),
			check: func(t *testing.T, s *CvarStore) {
				if got := s.Float("v"); got != 2 {
					t.Fatalf("Float = %v, want 2", got)
				}
			},
		},
		{
			name:     "bool rejects string",
			register: func(s *CvarStore) { s.RegisterBool("v", "", false) },
			set:      "yes",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCvarStore()
			tt.register(s)
			err := s.Set("v", tt.set)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Set accepted an incompatible value")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			tt.check(t, s)
		})
	}
}

func TestCvarSetUnregistered(t *testing.T) {
	s := NewCvarStore()
	if err := s.Set("missing", 1); err == nil {
		t.Fatal("Set accepted an unregistered name")
	}
}

func TestCvarLoadFile(t *testing.T) {
	s := NewCvarStore()
	s.RegisterFloat("clouds.renderScale", "", 0.25)
	s.RegisterInt("clouds.rayMarchQuality", "", 1)
	s.RegisterBool("rg.transientAliasing", "", true)

	path := filepath.Join(t.TempDir(), "aurora.toml")
	content := `
"clouds.renderScale" = 0.5
"clouds.rayMarchQuality" = 2
"rg.transientAliasing" = false
"unknown.cvar" = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := s.Float("clouds.renderScale"); got != 0.5 {
		t.Fatalf("renderScale = %v, want 0.5", got)
	}
	if got := s.Int("clouds.rayMarchQuality"); got != 2 {
		t.Fatalf("rayMarchQuality = %d, want 2", got)
	}
	if s.Bool("rg.transientAliasing") {
		t.Fatal("transientAliasing not overridden")
	}
}

func TestCvarWatchReload(t *testing.T) {
	s := NewCvarStore()
	s.RegisterInt("test.value", "", 1)

	path := filepath.Join(t.TempDir(), "aurora.toml")
	if err := os.WriteFile(path, []byte(`"test.value" = 2`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := s.Watch(path); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte(`"test.value" = 3`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Int("test.value") == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("watched file change not applied, value = %d", s.Int("test.value"))
}

func TestCvarNames(t *testing.T) {
	s := NewCvarStore()
	s.RegisterInt("a", "first", 0)
	s.RegisterBool("b", "second", false)

	names := s.Names()
	if len(names) != 2 || names["a"] != "first" || names["b"] != "second" {
		t.Fatalf("Names = %v", names)
	}
}
