// Package probe holds the executable checks run against the service under test.
package probe

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
)

// Func is an executable check. A nil error is a pass.
type Func func(ctx context.Context, t *Target) error

// Registry maps probe kinds to implementations.
type Registry struct {
	probes map[domprobe.Kind]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[domprobe.Kind]Func)}
}

// Builtins returns a registry holding every built-in probe.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(domprobe.KindHealthEndpoint, HealthEndpoint)
	r.Register(domprobe.KindOpenAPIDocument, OpenAPIDocument)
	r.Register(domprobe.KindWebSocketHandshake, WebSocketHandshake)
	return r
}

// Register binds kind to fn, replacing any previous binding.
func (r *Registry) Register(kind domprobe.Kind, fn Func) {
	r.probes[kind] = fn
}

// Resolve returns the implementation for a definition name.
// An unknown name is a configuration error coded unregistered_probe.
func (r *Registry) Resolve(name string) (Func, error) {
	fn, ok := r.probes[domprobe.Kind(name)]
	if !ok {
		return nil, Fail(domprobe.CodeUnregistered, fmt.Errorf("%w: %q", domain.ErrUnregisteredProbe, name))
	}
	return fn, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []domprobe.Kind {
	kinds := make([]domprobe.Kind, 0, len(r.probes))
	for k := range r.probes {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
