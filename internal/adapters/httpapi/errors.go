package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/app/failure"
	"github.com/eskate/storefront-api/internal/app/registration"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error struct {
		Code      string                            `json:"code"`
		Message   string                            `json:"message"`
		Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
		RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
		Kind      nullable.Nullable[string]         `json:"kind,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, newErrorResponse(r, code, message, details, ""))
}

func newErrorResponse(r *http.Request, code, message string, details map[string]any, kind failure.Kind) ErrorResponse {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	if kind != "" {
		er.Error.Kind = nullable.NewNullableWithValue(string(kind))
	}
	return er
}

// failureResponse renders a workflow error as its failure kind. ok is false
// for errors that have no kind.
func failureResponse(r *http.Request, err error, p *message.Printer) (int, ErrorResponse, bool) {
	kind, msg, ok := failure.Describe(err, p)
	if !ok {
		return 0, ErrorResponse{}, false
	}
	var details map[string]any
	var blocked *registration.BlockedError
	if errors.As(err, &blocked) {
		details = map[string]any{"outcome": blocked.Outcome}
	}
	return statusForKind(kind), newErrorResponse(r, strings.ToUpper(string(kind)), msg, details, kind), true
}

func statusForKind(k failure.Kind) int {
	switch k {
	case failure.KindFieldValidation, failure.KindUniquenessConflict:
		return http.StatusUnprocessableEntity
	case failure.KindIdentityCreationFailed:
		return http.StatusConflict
	case failure.KindProfilePersistenceFailed:
		return http.StatusBadGateway
	case failure.KindSessionResolution:
		return http.StatusServiceUnavailable
	case failure.KindSignInFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
