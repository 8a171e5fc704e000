package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/app/failure"
	"github.com/eskate/storefront-api/internal/app/registration"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
)

type EditFieldRequest struct {
	Value string `json:"value"`
}

type SignInRequest struct {
	Email    openapi_types.Email `json:"email"`
	Password string              `json:"password"`
}

// FieldView is one form field as the shell renders it. Secret values are
// never echoed; Redacted tells the shell a value is present.
type FieldView struct {
	Name     domain.Field                         `json:"name"`
	Value    nullable.Nullable[string]            `json:"value"`
	Redacted bool                                 `json:"redacted,omitempty"`
	State    registration.FieldState              `json:"state"`
	Result   nullable.Nullable[validation.Result] `json:"result,omitempty"`
}

type RegistrationResponse struct {
	Version    uint64              `json:"version"`
	Status     registration.Status `json:"status"`
	Validating []domain.Field      `json:"validating"`
	Fields     []FieldView         `json:"fields"`
	Outcome    validation.Outcome  `json:"outcome"`
}

func registrationFromSnapshot(s *registration.Snapshot) RegistrationResponse {
	out := RegistrationResponse{
		Version:    s.Version,
		Status:     s.Status,
		Validating: s.Validating(),
		Outcome:    s.Outcome,
	}
	if out.Validating == nil {
		out.Validating = []domain.Field{}
	}
	for _, f := range domain.Fields() {
		v := FieldView{Name: f, State: s.Field(f)}
		raw := s.Draft.Value(f)
		switch {
		case f.IsSecret():
			v.Value = nullable.NewNullNullable[string]()
			v.Redacted = raw != ""
		default:
			v.Value = nullable.NewNullableWithValue(raw)
		}
		if r, ok := s.Outcome.Result(f); ok {
			v.Result = nullable.NewNullableWithValue(r)
		}
		out.Fields = append(out.Fields, v)
	}
	return out
}

type ProfileView struct {
	Identifier string             `json:"identifier"`
	GivenName  string             `json:"givenName"`
	FamilyName string             `json:"familyName"`
	BirthDate  openapi_types.Date `json:"birthDate"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type LoadErrorView struct {
	Stage session.Stage `json:"stage"`
	Kind  failure.Kind  `json:"kind"`
	Alert string        `json:"alert"`
}

type SessionResponse struct {
	Kind      session.Kind                           `json:"kind"`
	Email     nullable.Nullable[openapi_types.Email] `json:"email"`
	Subject   nullable.Nullable[string]              `json:"subject"`
	Header    string                                 `json:"header"`
	Profile   nullable.Nullable[ProfileView]         `json:"profile"`
	LoadError nullable.Nullable[LoadErrorView]       `json:"loadError"`
}

func sessionFromState(st session.State, p *message.Printer) SessionResponse {
	out := SessionResponse{
		Kind:      st.Kind,
		Email:     nullable.NewNullNullable[openapi_types.Email](),
		Subject:   nullable.NewNullNullable[string](),
		Header:    st.HeaderLabel(p),
		Profile:   nullable.NewNullNullable[ProfileView](),
		LoadError: nullable.NewNullNullable[LoadErrorView](),
	}
	if st.Email != "" {
		out.Email = nullable.NewNullableWithValue(openapi_types.Email(st.Email))
	}
	if st.Subject != "" {
		out.Subject = nullable.NewNullableWithValue(string(st.Subject))
	}
	if st.Profile != nil {
		out.Profile = nullable.NewNullableWithValue(profileFromDomain(*st.Profile))
	}
	if st.LoadError != nil {
		out.LoadError = nullable.NewNullableWithValue(LoadErrorView{
			Stage: st.LoadError.Stage,
			Kind:  failure.KindSessionResolution,
			Alert: failure.Alert(failure.KindSessionResolution, p),
		})
	}
	return out
}

func profileFromDomain(p domain.UserProfile) ProfileView {
	return ProfileView{
		Identifier: string(p.Identifier),
		GivenName:  p.GivenName,
		FamilyName: p.FamilyName,
		BirthDate:  openapi_types.Date{Time: p.BirthDate},
		CreatedAt:  p.CreatedAt.UTC(),
	}
}

type AvailabilityResponse struct {
	Identifier string `json:"identifier"`
	Available  bool   `json:"available"`
}
