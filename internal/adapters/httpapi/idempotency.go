package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/idempotency"
)

// IdempotencyHeader names the client-chosen retry key.
const IdempotencyHeader = "Idempotency-Key"

// idempotentCall replays or records one response. The zero value (no key, or
// no store) is a pass-through.
//
// Two records are kept per key: a meta record (empty body hash) holding the
// hash of the first payload, and the response record keyed by that hash.
// Reusing a key with a different payload is rejected. While the meta record
// is marked processing and no response is stored, retries are turned away
// with IDEMPOTENCY_IN_PROGRESS; a failed attempt clears the mark.
type idempotentCall struct {
	s      *Server
	meta   idempotency.Fingerprint
	resp   idempotency.Fingerprint
	active bool
}

func (s *Server) idempotent(r *http.Request, dev domain.DeviceID, route string, body []byte) idempotentCall {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" || s.Idem == nil {
		return idempotentCall{}
	}
	sum := sha256.Sum256(body)
	meta := idempotency.Fingerprint{
		Key:    idempotency.Key(key),
		Device: dev,
		Method: r.Method,
		Route:  route,
	}
	resp := meta
	resp.BodyHash = hex.EncodeToString(sum[:])
	return idempotentCall{s: s, meta: meta, resp: resp, active: true}
}

// replay writes the stored response, or a conflict for a reused key, and
// reports whether it did.
func (c idempotentCall) replay(w http.ResponseWriter, r *http.Request) bool {
	if !c.active {
		return false
	}
	ctx := r.Context()
	meta, ok, err := c.s.Idem.Get(ctx, c.meta)
	if err != nil {
		c.s.internal(w, r, err)
		return true
	}
	if ok && string(meta.Body) != c.resp.BodyHash {
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
		return true
	}
	if !ok {
		c.mark(r, http.StatusProcessing)
		return false
	}

	rec, found, err := c.s.Idem.Get(ctx, c.resp)
	if err != nil {
		c.s.internal(w, r, err)
		return true
	}
	if !found || !strings.HasPrefix(rec.ContentType, "application/json") {
		if meta.StatusCode == http.StatusProcessing {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is still being processed", nil)
			return true
		}
		c.mark(r, http.StatusProcessing)
		return false
	}
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Body)
	return true
}

// mark writes the meta record with status as its state: StatusProcessing
// while an attempt runs, zero once it has given up.
func (c idempotentCall) mark(r *http.Request, status int) {
	if err := c.s.Idem.Put(r.Context(), c.meta, idempotency.Record{
		StatusCode:  status,
		ContentType: "text/plain",
		Body:        []byte(c.resp.BodyHash),
		CreatedAt:   c.s.Clock.Now().UTC(),
	}); err != nil {
		c.s.Log.Warn("store idempotency meta", zap.Error(err))
	}
}

// release lets a retry with the same key run again after a failed attempt.
func (c idempotentCall) release(r *http.Request) {
	if c.active {
		c.mark(r, 0)
	}
}

// respond writes v and stores it for replay. Only successes are stored; a
// failed attempt may be retried with the same key.
func (c idempotentCall) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !c.active || status != http.StatusOK {
		c.release(r)
		writeJSON(w, status, v)
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		c.s.internal(w, r, err)
		return
	}
	if err := c.s.Idem.Put(r.Context(), c.resp, idempotency.Record{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        buf.Bytes(),
		CreatedAt:   c.s.Clock.Now().UTC(),
	}); err != nil {
		c.s.Log.Warn("store idempotent response", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
