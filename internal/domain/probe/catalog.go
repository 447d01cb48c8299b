package probe

import "github.com/google/uuid"

// Error codes recorded on failed results.
const (
	CodeUnhealthy       = "unhealthy"
	CodeInvalidSpec     = "invalid_spec"
	CodeInvalidJSON     = "invalid_json"
	CodeHandshakeFailed = "handshake_failed"
	CodeUnreachable     = "unreachable"
	CodeUnregistered    = "unregistered_probe"
	CodeTimeout         = "timeout"
	CodePanic           = "panic"
	CodeUnknown         = "unknown_error"
)

// commonTaxonomy applies to every probe: transport and configuration failures.
var commonTaxonomy = Taxonomy{
	CodeUnreachable: {
		Meaning: "The probe could not reach the service under test.",
		Fix:     "Check that probes.target_url points at a running instance.",
	},
	CodeTimeout: {
		Meaning: "The probe did not complete within probes.request_timeout_sec.",
		Fix:     "Look for slow dependencies behind the probed endpoint.",
	},
	CodeUnregistered: {
		Meaning: "The definition is active but no probe implementation is registered for its name.",
		Fix:     "Deactivate the definition or register a probe under this exact name.",
	},
	CodePanic: {
		Meaning: "The probe implementation panicked.",
		Fix:     "Inspect the raw payload for the panic value and stack.",
	},
}

func withCommon(specific Taxonomy) Taxonomy {
	t := make(Taxonomy, len(specific)+len(commonTaxonomy))
	for k, v := range commonTaxonomy {
		t[k] = v
	}
	for k, v := range specific {
		t[k] = v
	}
	return t
}

// Defaults returns the built-in catalog with freshly generated ids.
func Defaults() []Definition {
	return DefaultsWithIDs(uuid.NewString)
}

// DefaultsWithIDs returns the built-in catalog using newID for identifiers.
func DefaultsWithIDs(newID func() string) []Definition {
	mk := func(k Kind, description, category string, sev Severity, tax Taxonomy) Definition {
		d, _ := New(newID(), string(k), description, category, sev, withCommon(tax))
		return d
	}
	return []Definition{
		mk(KindHealthEndpoint,
			"Verifies that the status endpoint returns a healthy status.",
			"API", SeverityCritical,
			Taxonomy{
				CodeUnhealthy: {
					Meaning: "The status endpoint is reporting an unhealthy status.",
					Fix:     "Check the status endpoint's dependency checks to find the failing component.",
				},
				CodeInvalidJSON: {
					Meaning: "The status endpoint did not return valid JSON.",
					Fix:     "Check the status handler for encoding errors.",
				},
			}),
		mk(KindOpenAPIDocument,
			"Ensures the /openapi.json endpoint returns a valid OpenAPI 3.1.0 spec.",
			"API", SeverityHigh,
			Taxonomy{
				CodeInvalidJSON: {
					Meaning: "The /openapi.json endpoint did not return valid JSON.",
					Fix:     "Check the OpenAPI generator for errors.",
				},
				CodeInvalidSpec: {
					Meaning: "The /openapi.json endpoint did not return a valid OpenAPI 3.1.0 spec.",
					Fix:     "Check the OpenAPI generator for compliance issues.",
				},
			}),
		mk(KindWebSocketHandshake,
			"Tests the WebSocket handshake on the realtime room endpoint.",
			"WebSocket", SeverityCritical,
			Taxonomy{
				CodeHandshakeFailed: {
					Meaning: "The WebSocket handshake failed.",
					Fix:     "Check the room hub implementation and the /ws endpoint.",
				},
			}),
	}
}
