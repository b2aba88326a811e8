// Package env builds the extra environment handed to the Forge installer and
// the server launch script.
package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Vars are KEY=VALUE overrides taken from configuration.
type Vars map[string]string

// Parse reads "KEY=VALUE" entries. Later entries win.
func Parse(entries []string) (Vars, error) {
	v := make(Vars, len(entries))
	for _, kv := range entries {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, fmt.Errorf("env: malformed entry %q", kv)
		}
		v[strings.TrimSpace(kv[:i])] = kv[i+1:]
	}
	return v, nil
}

// List returns the overrides as sorted KEY=VALUE pairs. ${NAME} references
// resolve against the other overrides first and the agent's environment
// second. Expansion is single pass.
func (v Vars) List() []string {
	if len(v) == 0 {
		return nil
	}
	lookup := func(name string) string {
		if val, ok := v[name]; ok {
			return val
		}
		return os.Getenv(name)
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+os.Expand(v[k], lookup))
	}
	return out
}
