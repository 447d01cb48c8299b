package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
)

// ErrorResponseCode is the machine-readable error code of an ErrorResponse.
type ErrorResponseCode string

// Defines values for ErrorResponseCode.
const (
	ErrorResponseCodeBadRequest       ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized     ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed ErrorResponseCode = "validation_failed"
	ErrorResponseCodeInvalidSession   ErrorResponseCode = "invalid_session"
	ErrorResponseCodeNotFound         ErrorResponseCode = "not_found"
	ErrorResponseCodeAlreadyExists    ErrorResponseCode = "already_exists"
	ErrorResponseCodeInternalError    ErrorResponseCode = "internal_error"
)

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// RunResponse defines model for RunResponse.
type RunResponse struct {
	SessionUUID string `json:"session_uuid"`
	Scheduled   int    `json:"scheduled"`
}

// ProbeResult defines model for ProbeResult.
type ProbeResult struct {
	ID              string         `json:"id"`
	ProbeID         string         `json:"probe_id"`
	ProbeName       string         `json:"probe_name,omitempty"`
	Category        string         `json:"category,omitempty"`
	Severity        string         `json:"severity,omitempty"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationMs      int64          `json:"duration_ms"`
	DurationClamped bool           `json:"duration_clamped,omitempty"`
	ErrorCode       *string        `json:"error_code"`
	Raw             *domresult.Raw `json:"raw"`
	Meaning         *string        `json:"meaning,omitempty"`
	Fix             *string        `json:"fix,omitempty"`
	AIExplanation   *string        `json:"ai_explanation"`
	AIFixSuggestion *string        `json:"ai_fix_suggestion"`
}

// SessionReport defines model for SessionReport.
type SessionReport struct {
	SessionUUID string        `json:"session_uuid"`
	State       string        `json:"state"`
	Scheduled   int           `json:"scheduled"`
	Received    int           `json:"received"`
	Pending     []string      `json:"pending"`
	Results     []ProbeResult `json:"results"`
}

// Definition defines model for Definition.
type Definition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Severity    string            `json:"severity"`
	Active      bool              `json:"active"`
	ErrorMap    domprobe.Taxonomy `json:"error_map"`
	CreatedAt   int64             `json:"created_at"`
}

// DefinitionList defines model for DefinitionList.
type DefinitionList struct {
	Definitions []Definition `json:"definitions"`
}

// UpdateDefinitionRequest defines model for UpdateDefinitionRequest.
type UpdateDefinitionRequest struct {
	Active *bool `json:"active"`
}

// HealthSignal defines model for HealthSignal.
type HealthSignal struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"lastCheck"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RootResponse defines model for RootResponse.
type RootResponse struct {
	OK      bool      `json:"ok"`
	TS      time.Time `json:"ts"`
	Version string    `json:"version"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /)
	GetRoot(w http.ResponseWriter, r *http.Request)
	// (GET /api/health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (GET /api/status)
	GetStatus(w http.ResponseWriter, r *http.Request)
	// (POST /api/tests/run)
	RunTests(w http.ResponseWriter, r *http.Request)
	// (GET /api/tests/session/{id})
	GetSession(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// (GET /api/tests/latest)
	GetLatestSession(w http.ResponseWriter, r *http.Request)
	// (GET /api/tests/defs)
	ListDefinitions(w http.ResponseWriter, r *http.Request)
	// (PATCH /api/tests/defs/{id})
	UpdateDefinition(w http.ResponseWriter, r *http.Request, id string)
	// (GET /openapi.json)
	GetOpenAPIJSON(w http.ResponseWriter, r *http.Request)
	// (GET /openapi.yaml)
	GetOpenAPIYAML(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc wraps a single operation handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts path parameters and dispatches to the ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError is passed to ErrorHandlerFunc when a path parameter does not bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	var handler http.Handler = h
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// GetSession operation middleware
func (siw *ServerInterfaceWrapper) GetSession(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID

	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetSession(w, r, id)
	})
}

// UpdateDefinition operation middleware
func (siw *ServerInterfaceWrapper) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var id string

	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.UpdateDefinition(w, r, id)
	})
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API document.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}
	plain := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { wrapper.serve(w, r, h) }
	}

	base := options.BaseURL
	r.Get(base+"/", plain(si.GetRoot))
	r.Get(base+"/api/health", plain(si.GetHealth))
	r.Get(base+"/api/status", plain(si.GetStatus))
	r.Post(base+"/api/tests/run", plain(si.RunTests))
	r.Get(base+"/api/tests/session/{id}", wrapper.GetSession)
	r.Get(base+"/api/tests/latest", plain(si.GetLatestSession))
	r.Get(base+"/api/tests/defs", plain(si.ListDefinitions))
	r.Patch(base+"/api/tests/defs/{id}", wrapper.UpdateDefinition)
	r.Get(base+"/openapi.json", plain(si.GetOpenAPIJSON))
	r.Get(base+"/openapi.yaml", plain(si.GetOpenAPIYAML))
	r.Get(base+"/metrics", plain(si.Metrics))
	return r
}
