package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryUnit is the JVM heap size suffix.
type MemoryUnit string

const (
	UnitGigabytes MemoryUnit = "G"
	UnitMegabytes MemoryUnit = "M"
)

// Valid reports whether u is one of the accepted JVM units.
func (u MemoryUnit) Valid() bool { return u == UnitGigabytes || u == UnitMegabytes }

// Forge identifies the installable Forge runtime. The controller sends either
// a bare version string or an object carrying the version.
type Forge struct {
	ID      string `json:"id,omitempty"`
	Version string `json:"version"`
}

func (f *Forge) UnmarshalJSON(b []byte) error {
	if s, ok, err := decodeString(b); ok || err != nil {
		if err != nil {
			return err
		}
		*f = Forge{Version: s}
		return nil
	}
	type plain Forge
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("forge: %w", err)
	}
	*f = Forge(p)
	return nil
}

// Mod is a single requested mod. Only ID takes part in reconciliation.
type Mod struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (m *Mod) UnmarshalJSON(b []byte) error {
	if s, ok, err := decodeString(b); ok || err != nil {
		if err != nil {
			return err
		}
		*m = Mod{ID: s}
		return nil
	}
	type plain Mod
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("mod: %w", err)
	}
	*m = Mod(p)
	return nil
}

// Server describes the game server a request operates on. It is owned by the
// controller and treated as read-only here.
type Server struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	MinMemory     int        `json:"minMemory"`
	MinMemoryUnit MemoryUnit `json:"minMemoryUnit"`
	MaxMemory     int        `json:"maxMemory"`
	MaxMemoryUnit MemoryUnit `json:"maxMemoryUnit"`
	Forge         Forge      `json:"forge"`
	Mods          []Mod      `json:"mods"`
	Running       bool       `json:"running"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ModIDs returns the identifiers of the requested mods, skipping blanks.
func (s Server) ModIDs() []string {
	ids := make([]string, 0, len(s.Mods))
	for _, m := range s.Mods {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// JVMArgs renders the heap flags in the order written to user_jvm_args.txt.
func (s Server) JVMArgs() []string {
	return []string{
		fmt.Sprintf("-Xmx%d%s", s.MaxMemory, s.MaxMemoryUnit),
		fmt.Sprintf("-Xms%d%s", s.MinMemory, s.MinMemoryUnit),
	}
}

func decodeString(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", true, err
	}
	return s, true, nil
}
