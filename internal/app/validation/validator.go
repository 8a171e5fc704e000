// Package validation evaluates registration drafts against a closed field
// schema. Evaluation is pure: the same draft, mode and day always produce the
// same Outcome.
package validation

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/i18n"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
)

// Mode selects which rules run.
type Mode int

const (
	// Incremental runs per-field rules only (keystroke, blur).
	Incremental Mode = iota
	// Submission also runs cross-field rules.
	Submission
)

func (m Mode) String() string {
	if m == Submission {
		return "submission"
	}
	return "incremental"
}

type Validator struct {
	schema Schema
	clk    clockport.Clock
	loc    *time.Location
	p      *message.Printer
}

type Option func(*Validator)

// WithLocation sets the location "today" is evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) {
		if loc != nil {
			v.loc = loc
		}
	}
}

// WithPrinter sets the printer used for messages. Defaults to English.
func WithPrinter(p *message.Printer) Option {
	return func(v *Validator) {
		if p != nil {
			v.p = p
		}
	}
}

func NewValidator(schema Schema, clk clockport.Clock, opts ...Option) *Validator {
	v := &Validator{
		schema: schema,
		clk:    clk,
		loc:    time.UTC,
		p:      i18n.Printer(i18n.Default()),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Schema() Schema { return v.schema }

// Validate evaluates every schema field. It never fails; invalid fields carry
// a code and message in the returned Outcome.
func (v *Validator) Validate(d domain.RegistrationDraft, mode Mode) Outcome {
	today := v.today()
	out := Outcome{results: make(map[domain.Field]Result, len(v.schema.fields))}
	for _, fd := range v.schema.fields {
		out.results[fd.Name] = v.evaluate(d, fd, mode, today)
	}
	return out
}

// ValidateField evaluates a single field. Fields outside the schema pass.
func (v *Validator) ValidateField(d domain.RegistrationDraft, f domain.Field, mode Mode) Result {
	i, ok := v.schema.index[f]
	if !ok {
		return pass()
	}
	return v.evaluate(d, v.schema.fields[i], mode, v.today())
}

// Taken is the result recorded when the identifier is already in use.
func (v *Validator) Taken() Result {
	return Result{Code: CodeIdentifierTaken, Message: v.p.Sprintf(i18n.MsgIdentifierTaken)}
}

// AvailabilityUnknown is the result recorded when the availability check failed.
func (v *Validator) AvailabilityUnknown() Result {
	return Result{Code: CodeAvailabilityUnknown, Message: v.p.Sprintf(i18n.MsgAvailabilityUnknown)}
}

func (v *Validator) today() time.Time {
	now := v.clk.Now().In(v.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.loc)
}

func (v *Validator) evaluate(d domain.RegistrationDraft, fd FieldDescriptor, mode Mode, today time.Time) Result {
	raw := d.Value(fd.Name)
	value := raw
	if fd.Widget != WidgetSecret {
		value = strings.TrimSpace(raw)
	}
	for _, r := range fd.Rules {
		if r.CrossField() && mode != Submission {
			continue
		}
		if res, ok := v.check(d, r, value, today); !ok {
			return res
		}
	}
	return pass()
}

func (v *Validator) check(d domain.RegistrationDraft, r Rule, value string, today time.Time) (Result, bool) {
	switch r.Kind {
	case RuleMinLength:
		if utf8.RuneCountInString(value) < r.N {
			return Result{Code: CodeMinLength, Message: v.p.Sprintf(i18n.MsgMinLength, r.N)}, false
		}
	case RuleDate:
		if _, err := ParseDate(value, v.loc); err != nil {
			return Result{Code: CodeInvalidDate, Message: v.p.Sprintf(i18n.MsgInvalidDate)}, false
		}
	case RuleMinimumAge:
		birth, err := ParseDate(value, v.loc)
		if err != nil {
			return Result{Code: CodeInvalidDate, Message: v.p.Sprintf(i18n.MsgInvalidDate)}, false
		}
		if !OldEnough(birth, today, r.N) {
			return Result{Code: CodeUnderage, Message: v.p.Sprintf(i18n.MsgUnderage, r.N)}, false
		}
	case RuleEmail:
		if !isBareEmail(value) {
			return Result{Code: CodeInvalidEmail, Message: v.p.Sprintf(i18n.MsgInvalidEmail)}, false
		}
	case RuleMatches:
		if d.Value(r.Other) != value {
			return Result{Code: CodePasswordMismatch, Message: v.p.Sprintf(i18n.MsgPasswordMismatch)}, false
		}
	}
	return Result{}, true
}

var errEmptyDate = errors.New("empty date")

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns midnight of
// that calendar day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// OldEnough reports whether someone born on birth has turned years by today.
// The threshold is (today.year-years, today.month, today.day) and is inclusive.
func OldEnough(birth, today time.Time, years int) bool {
	threshold := time.Date(today.Year()-years, today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	return !birth.After(threshold)
}

func isBareEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject "Name <email@x>".
	return addr.Name == "" && addr.Address == s
}
