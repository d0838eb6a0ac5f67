// Package env composes the runner environment from env files and KEY=VALUE lists.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

// Env is an ordered set of variables. Later writes to a key keep its
// original position.
type Env struct {
	order []string
	vars  map[string]string
}

func New() *Env {
	return &Env{vars: make(map[string]string)}
}

// Set stores k=v after expanding ${VAR} references against the variables set
// so far and then the OS environment.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	v = os.Expand(v, e.lookup)
	if _, ok := e.vars[k]; !ok {
		e.order = append(e.order, k)
	}
	e.vars[k] = v
}

func (e *Env) Get(k string) (string, bool) {
	v, ok := e.vars[k]
	return v, ok
}

func (e *Env) lookup(k string) string {
	if v, ok := e.vars[k]; ok {
		return v
	}
	return os.Getenv(k)
}

// SetPairs applies "K=V" items in order; malformed items are skipped.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			e.Set(kv[:i], kv[i+1:])
		}
	}
}

// LoadFile applies a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			e.Set(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
		}
	}
	return nil
}

// List returns the variables as "K=V" in first-set order.
func (e *Env) List() []string {
	out := make([]string, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}
