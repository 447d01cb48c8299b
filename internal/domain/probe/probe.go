package probe

import (
	"fmt"
	"time"
)

// Kind identifies a built-in probe implementation. The value is the
// definition name it is registered under.
type Kind string

const (
	// KindHealthEndpoint checks the service status endpoint.
	KindHealthEndpoint Kind = "Health Endpoint Check"
	// KindOpenAPIDocument checks the machine-readable API document.
	KindOpenAPIDocument Kind = "OpenAPI JSON Check"
	// KindWebSocketHandshake checks the realtime upgrade endpoint.
	KindWebSocketHandshake Kind = "WebSocket Handshake"
)

// Kinds returns every built-in probe kind.
func Kinds() []Kind {
	return []Kind{KindHealthEndpoint, KindOpenAPIDocument, KindWebSocketHandshake}
}

// Severity is an informational impact level.
type Severity string

// Severity values used by the default catalog.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Explanation is the human-readable text attached to an error code.
type Explanation struct {
	Meaning string `json:"meaning"`
	Fix     string `json:"fix"`
}

// Taxonomy maps error codes to explanations.
type Taxonomy map[string]Explanation

// Lookup returns the explanation for code, if any.
func (t Taxonomy) Lookup(code string) (Explanation, bool) {
	if t == nil {
		return Explanation{}, false
	}
	e, ok := t[code]
	return e, ok
}

// Definition is a catalog entry for a named probe (immutable value object).
type Definition struct {
	id          string
	name        string
	description string
	category    string
	severity    Severity
	active      bool
	taxonomy    Taxonomy
	createdAt   int64
}

// New validates and creates an active Definition.
func New(id, name, description, category string, severity Severity, taxonomy Taxonomy) (Definition, error) {
	if id == "" {
		return Definition{}, fmt.Errorf("definition id is required")
	}
	if name == "" {
		return Definition{}, fmt.Errorf("definition name is required")
	}
	return Definition{
		id:          id,
		name:        name,
		description: description,
		category:    category,
		severity:    severity,
		active:      true,
		taxonomy:    taxonomy,
		createdAt:   time.Now().UnixMilli(),
	}, nil
}

// Reconstruct creates a Definition without validation (storage hydration).
func Reconstruct(
	id, name, description, category string, severity Severity,
	active bool, taxonomy Taxonomy, createdAt int64,
) Definition {
	return Definition{
		id:          id,
		name:        name,
		description: description,
		category:    category,
		severity:    severity,
		active:      active,
		taxonomy:    taxonomy,
		createdAt:   createdAt,
	}
}

// ID returns the stable identifier.
func (d Definition) ID() string { return d.id }

// Name returns the unique probe name.
func (d Definition) Name() string { return d.name }

// Kind returns the probe kind the name resolves to.
func (d Definition) Kind() Kind { return Kind(d.name) }

// Description returns the informational description.
func (d Definition) Description() string { return d.description }

// Category returns the informational category.
func (d Definition) Category() string { return d.category }

// Severity returns the informational severity.
func (d Definition) Severity() Severity { return d.severity }

// Active reports whether the definition is scheduled by runs.
func (d Definition) Active() bool { return d.active }

// Taxonomy returns the error code explanations.
func (d Definition) Taxonomy() Taxonomy { return d.taxonomy }

// CreatedAt returns the creation timestamp (unix millis).
func (d Definition) CreatedAt() int64 { return d.createdAt }
