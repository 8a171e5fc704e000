package validation

import (
	"bytes"
	"encoding/json"

	"github.com/eskate/storefront-api/internal/domain"
)

// Code is the stable, machine-readable reason a field failed.
type Code string

const (
	CodeMinLength           Code = "min_length"
	CodeInvalidDate         Code = "invalid_date"
	CodeUnderage            Code = "underage"
	CodeInvalidEmail        Code = "invalid_email"
	CodePasswordMismatch    Code = "password_mismatch"
	CodeIdentifierTaken     Code = "identifier_taken"
	CodeAvailabilityUnknown Code = "availability_unknown"
)

// Result is the verdict for one field.
type Result struct {
	Valid   bool   `json:"valid"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func pass() Result { return Result{Valid: true} }

// Outcome maps fields to results. It is a value: every method that changes it
// returns a new Outcome and leaves the receiver untouched.
type Outcome struct {
	results map[domain.Field]Result
}

// Result returns the recorded result for f.
func (o Outcome) Result(f domain.Field) (Result, bool) {
	r, ok := o.results[f]
	return r, ok
}

// Len returns the number of fields with a recorded result.
func (o Outcome) Len() int { return len(o.results) }

// With returns a copy of o with f set to r.
func (o Outcome) With(f domain.Field, r Result) Outcome {
	next := make(map[domain.Field]Result, len(o.results)+1)
	for k, v := range o.results {
		next[k] = v
	}
	next[f] = r
	return Outcome{results: next}
}

// Without returns a copy of o with no result for f.
func (o Outcome) Without(f domain.Field) Outcome {
	if _, ok := o.results[f]; !ok {
		return o
	}
	next := make(map[domain.Field]Result, len(o.results))
	for k, v := range o.results {
		if k != f {
			next[k] = v
		}
	}
	return Outcome{results: next}
}

// Failed lists the fields whose result is invalid, in form order.
func (o Outcome) Failed() []domain.Field {
	var out []domain.Field
	for _, f := range domain.Fields() {
		if r, ok := o.results[f]; ok && !r.Valid {
			out = append(out, f)
		}
	}
	return out
}

// Submittable reports whether every registration field has a passing result.
func (o Outcome) Submittable() bool {
	for _, f := range domain.Fields() {
		r, ok := o.results[f]
		if !ok || !r.Valid {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the outcome as an object keyed by field name in form order.
func (o Outcome) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range domain.Fields() {
		r, ok := o.results[f]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(string(f))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
