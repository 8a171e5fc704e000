package validation

import (
	"errors"
	"fmt"

	"github.com/eskate/storefront-api/internal/domain"
)

// Widget is the input kind the presentation layer renders for a field.
type Widget string

const (
	WidgetText   Widget = "text"
	WidgetDate   Widget = "date"
	WidgetEmail  Widget = "email"
	WidgetSecret Widget = "secret"
)

func (w Widget) valid() bool {
	switch w {
	case WidgetText, WidgetDate, WidgetEmail, WidgetSecret:
		return true
	default:
		return false
	}
}

// RuleKind identifies one validation rule.
type RuleKind string

const (
	RuleMinLength  RuleKind = "min_length"
	RuleDate       RuleKind = "date"
	RuleMinimumAge RuleKind = "minimum_age"
	RuleEmail      RuleKind = "email"
	// RuleMatches is cross-field: it only runs in Submission mode.
	RuleMatches RuleKind = "matches"
)

// Rule is one check applied to a field value. Rules of a field run in order
// and the first failure decides the field's result.
type Rule struct {
	Kind RuleKind
	// N is the minimum length for RuleMinLength and the minimum age in
	// years for RuleMinimumAge.
	N int
	// Other is the field compared against by RuleMatches.
	Other domain.Field
}

func MinLength(n int) Rule            { return Rule{Kind: RuleMinLength, N: n} }
func Date() Rule                      { return Rule{Kind: RuleDate} }
func MinimumAge(years int) Rule       { return Rule{Kind: RuleMinimumAge, N: years} }
func Email() Rule                     { return Rule{Kind: RuleEmail} }
func Matches(other domain.Field) Rule { return Rule{Kind: RuleMatches, Other: other} }

// CrossField reports whether the rule reads another field of the draft.
func (r Rule) CrossField() bool { return r.Kind == RuleMatches }

// FieldDescriptor declares one form input.
type FieldDescriptor struct {
	Name   domain.Field
	Widget Widget
	Rules  []Rule
}

// Schema is the closed, ordered set of field descriptors of the registration
// form. The zero value is unusable; build one with NewSchema or DefaultSchema.
type Schema struct {
	fields []FieldDescriptor
	index  map[domain.Field]int
}

// DefaultMinimumAge is the age registrants must have reached.
const DefaultMinimumAge = 18

// DefaultSchema returns the storefront registration form. A minimumAge of
// zero or less selects DefaultMinimumAge.
func DefaultSchema(minimumAge int) Schema {
	if minimumAge <= 0 {
		minimumAge = DefaultMinimumAge
	}
	s, err := NewSchema([]FieldDescriptor{
		{Name: domain.FieldIdentifier, Widget: WidgetText, Rules: []Rule{MinLength(3)}},
		{Name: domain.FieldGivenName, Widget: WidgetText, Rules: []Rule{MinLength(3)}},
		{Name: domain.FieldFamilyName, Widget: WidgetText, Rules: []Rule{MinLength(3)}},
		{Name: domain.FieldBirthDate, Widget: WidgetDate, Rules: []Rule{Date(), MinimumAge(minimumAge)}},
		{Name: domain.FieldEmail, Widget: WidgetEmail, Rules: []Rule{Email()}},
		{Name: domain.FieldPassword, Widget: WidgetSecret, Rules: []Rule{MinLength(6)}},
		{Name: domain.FieldPasswordConfirmation, Widget: WidgetSecret, Rules: []Rule{MinLength(6), Matches(domain.FieldPassword)}},
	})
	if err != nil {
		panic(err)
	}
	return s
}

var ErrInvalidSchema = errors.New("invalid schema")

// NewSchema checks descriptors exhaustively: every registration field must
// appear exactly once, carry at least one well-formed rule and a known widget.
func NewSchema(descriptors []FieldDescriptor) (Schema, error) {
	s := Schema{
		fields: make([]FieldDescriptor, 0, len(descriptors)),
		index:  make(map[domain.Field]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if _, ok := domain.ParseField(string(d.Name)); !ok {
			return Schema{}, fmt.Errorf("%w: unknown field %q", ErrInvalidSchema, d.Name)
		}
		if _, dup := s.index[d.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, d.Name)
		}
		if !d.Widget.valid() {
			return Schema{}, fmt.Errorf("%w: field %q: unknown widget %q", ErrInvalidSchema, d.Name, d.Widget)
		}
		if len(d.Rules) == 0 {
			return Schema{}, fmt.Errorf("%w: field %q has no rules", ErrInvalidSchema, d.Name)
		}
		for _, r := range d.Rules {
			if err := checkRule(d.Name, r); err != nil {
				return Schema{}, err
			}
		}
		rules := make([]Rule, len(d.Rules))
		copy(rules, d.Rules)
		d.Rules = rules
		s.index[d.Name] = len(s.fields)
		s.fields = append(s.fields, d)
	}
	for _, f := range domain.Fields() {
		if _, ok := s.index[f]; !ok {
			return Schema{}, fmt.Errorf("%w: missing field %q", ErrInvalidSchema, f)
		}
	}
	return s, nil
}

func checkRule(field domain.Field, r Rule) error {
	switch r.Kind {
	case RuleMinLength, RuleMinimumAge:
		if r.N <= 0 {
			return fmt.Errorf("%w: field %q: rule %s needs a positive bound", ErrInvalidSchema, field, r.Kind)
		}
	case RuleDate, RuleEmail:
	case RuleMatches:
		if _, ok := domain.ParseField(string(r.Other)); !ok || r.Other == field {
			return fmt.Errorf("%w: field %q: rule matches needs another field, got %q", ErrInvalidSchema, field, r.Other)
		}
	default:
		return fmt.Errorf("%w: field %q: unknown rule %q", ErrInvalidSchema, field, r.Kind)
	}
	return nil
}

// Fields returns the descriptors in form order.
func (s Schema) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	for i, fd := range s.fields {
		fd.Rules = append([]Rule(nil), fd.Rules...)
		out[i] = fd
	}
	return out
}

// Field returns the descriptor for f.
func (s Schema) Field(f domain.Field) (FieldDescriptor, bool) {
	i, ok := s.index[f]
	if !ok {
		return FieldDescriptor{}, false
	}
	fd := s.fields[i]
	fd.Rules = append([]Rule(nil), fd.Rules...)
	return fd, true
}
