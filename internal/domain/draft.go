package domain

// Field names one input of the registration form.
type Field string

const (
	FieldIdentifier           Field = "identifier"
	FieldGivenName            Field = "givenName"
	FieldFamilyName           Field = "familyName"
	FieldBirthDate            Field = "birthDate"
	FieldEmail                Field = "email"
	FieldPassword             Field = "password"
	FieldPasswordConfirmation Field = "passwordConfirmation"
)

var fieldOrder = []Field{
	FieldIdentifier,
	FieldGivenName,
	FieldFamilyName,
	FieldBirthDate,
	FieldEmail,
	FieldPassword,
	FieldPasswordConfirmation,
}

// Fields returns every registration field in form order.
func Fields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// ParseField returns the Field named by s.
func ParseField(s string) (Field, bool) {
	for _, f := range fieldOrder {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// IsSecret reports whether the field value must never be echoed back or logged.
func (f Field) IsSecret() bool {
	return f == FieldPassword || f == FieldPasswordConfirmation
}

// RegistrationDraft holds the raw values collected by the registration form.
// Values are kept as entered; the validator parses and normalizes them.
type RegistrationDraft struct {
	Identifier           string
	GivenName            string
	FamilyName           string
	BirthDate            string
	Email                string
	Password             string
	PasswordConfirmation string
}

// Value returns the raw value of f.
func (d RegistrationDraft) Value(f Field) string {
	switch f {
	case FieldIdentifier:
		return d.Identifier
	case FieldGivenName:
		return d.GivenName
	case FieldFamilyName:
		return d.FamilyName
	case FieldBirthDate:
		return d.BirthDate
	case FieldEmail:
		return d.Email
	case FieldPassword:
		return d.Password
	case FieldPasswordConfirmation:
		return d.PasswordConfirmation
	default:
		return ""
	}
}

// With returns a copy of d with f set to v. Unknown fields leave d unchanged.
func (d RegistrationDraft) With(f Field, v string) RegistrationDraft {
	switch f {
	case FieldIdentifier:
		d.Identifier = v
	case FieldGivenName:
		d.GivenName = v
	case FieldFamilyName:
		d.FamilyName = v
	case FieldBirthDate:
		d.BirthDate = v
	case FieldEmail:
		d.Email = v
	case FieldPassword:
		d.Password = v
	case FieldPasswordConfirmation:
		d.PasswordConfirmation = v
	}
	return d
}
