package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/app/device"
	"github.com/eskate/storefront-api/internal/app/registration"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/i18n"
	"github.com/eskate/storefront-api/internal/platform/logging"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 64 << 10

// Server exposes the per-device registration workflow and session bootstrap.
type Server struct {
	Devices *device.Registry
	Checker *uniqueness.Checker
	Idem    idempotency.Store
	Clock   clockport.Clock
	Locale  language.Tag
	Log     *zap.Logger
}

func NewServer(devices *device.Registry, checker *uniqueness.Checker, idem idempotency.Store, clk clockport.Clock, locale language.Tag, log *zap.Logger) *Server {
	return &Server{
		Devices: devices,
		Checker: checker,
		Idem:    idem,
		Clock:   clk,
		Locale:  locale,
		Log:     logging.OrNop(log),
	}
}

func (s *Server) device(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id, ok := DeviceFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusBadRequest, "MISSING_DEVICE_ID", "missing "+DeviceHeader+" header", nil)
		return nil, false
	}
	return s.Devices.Get(id), true
}

func (s *Server) printer(r *http.Request) *message.Printer {
	return i18n.Printer(i18n.FromRequest(r, s.Locale))
}

func (s *Server) GetRegistration(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, registrationFromSnapshot(d.Form.Snapshot()))
}

func (s *Server) EditField(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	field, ok := s.field(w, r)
	if !ok {
		return
	}
	var req EditFieldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be {\"value\": string}", nil)
		return
	}
	snap, err := d.Form.Edit(field, req.Value)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationFromSnapshot(snap))
}

// BlurField validates the field and starts its asynchronous checks. With
// ?wait=true the response is sent once those checks have settled.
func (s *Server) BlurField(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	field, ok := s.field(w, r)
	if !ok {
		return
	}
	done, err := d.Form.Blur(r.Context(), field)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		select {
		case <-done:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, registrationFromSnapshot(d.Form.Snapshot()))
}

func (s *Server) ResetRegistration(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, registrationFromSnapshot(d.Form.Reset()))
}

// SubmitRegistration runs the whole registration. Responses to requests
// carrying an Idempotency-Key are stored and replayed on retry.
func (s *Server) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "unreadable request body", nil)
		return
	}

	idem := s.idempotent(r, d.ID, "/v1/registration/submit", body)
	if idem.replay(w, r) {
		return
	}

	p := s.printer(r)
	st, err := d.Workflow.Register(r.Context())
	if err != nil {
		idem.release(r)
		s.workflowError(w, r, err, p)
		return
	}
	idem.respond(w, r, http.StatusOK, sessionFromState(st, p))
}

func (s *Server) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	p := s.printer(r)
	st, err := d.Workflow.CompleteProfile(r.Context())
	if err != nil {
		s.workflowError(w, r, err, p)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromState(st, p))
}

func (s *Server) GetAvailability(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.device(w, r); !ok {
		return
	}
	ident := strings.TrimSpace(chi.URLParam(r, "identifier"))
	available, err := s.Checker.IsAvailable(r.Context(), ident)
	if err != nil {
		if errors.Is(err, uniqueness.ErrEmptyIdentifier) {
			writeError(w, r, http.StatusUnprocessableEntity, "EMPTY_IDENTIFIER", "identifier must not be blank", nil)
			return
		}
		s.Log.Warn("availability check failed", zap.String("identifier", ident), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "AVAILABILITY_UNKNOWN", s.printer(r).Sprintf(i18n.MsgAvailabilityUnknown), nil)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Identifier: ident, Available: available})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionFromState(d.Sessions.Resolve(r.Context()), s.printer(r)))
}

func (s *Server) SignIn(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(string(req.Email)) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must carry email and password", nil)
		return
	}
	p := s.printer(r)
	st, err := d.Sessions.SignIn(r.Context(), string(req.Email), req.Password)
	if err != nil {
		s.workflowError(w, r, err, p)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromState(st, p))
}

func (s *Server) SignOut(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	if err := d.Sessions.SignOut(r.Context()); err != nil {
		s.workflowError(w, r, err, s.printer(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) field(w http.ResponseWriter, r *http.Request) (domain.Field, bool) {
	name := chi.URLParam(r, "field")
	f, ok := domain.ParseField(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_FIELD", "unknown registration field "+name, map[string]any{"fields": domain.Fields()})
		return "", false
	}
	return f, true
}

func (s *Server) workflowError(w http.ResponseWriter, r *http.Request, err error, p *message.Printer) {
	status, er, ok := failureResponse(r, err, p)
	if !ok {
		s.internal(w, r, err)
		return
	}
	var blocked *registration.BlockedError
	if !errors.As(err, &blocked) {
		s.Log.Info("workflow failed", zap.String("kind", er.Error.Code), zap.Error(err))
	}
	writeJSON(w, status, er)
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, registration.ErrUnknownField) {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_FIELD", err.Error(), nil)
		return
	}
	if r.Context().Err() != nil {
		return
	}
	s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
