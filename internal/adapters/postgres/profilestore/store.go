package profilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/eskate/storefront-api/internal/adapters/postgres"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

// Store is a Postgres implementation of profilestore.Store.
//
// Subjects are scoped to the identity provider issuer; identifiers are unique
// across issuers.
type Store struct {
	pool   *pgxpool.Pool
	issuer string
}

func NewStore(pool *pgxpool.Pool, issuer string) *Store {
	return &Store{pool: pool, issuer: issuer}
}

func (s *Store) QueryByField(ctx context.Context, field string, value string) ([]domain.UserProfile, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	if field != profilestore.FieldIdentifier {
		return nil, profilestore.ErrUnsupportedField
	}
	rows, err := s.pool.Query(ctx, `
		SELECT subject_sub, identifier, given_name, family_name, birth_date, created_at
		FROM profiles
		WHERE identifier = $1
	`, strings.TrimSpace(value))
	if err != nil {
		return nil, mapError(err)
	}
	out, err := pgx.CollectRows(rows, scanProfile)
	if err != nil {
		return nil, mapError(err)
	}
	if out == nil {
		out = []domain.UserProfile{}
	}
	return out, nil
}

func (s *Store) WriteProfile(ctx context.Context, subject domain.SubjectID, p domain.UserProfile) (domain.UserProfile, error) {
	if s.pool == nil {
		return domain.UserProfile{}, errors.New("nil postgres pool")
	}
	if subject == "" {
		return domain.UserProfile{}, profilestore.ErrPermissionDenied
	}

	var createdAt time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (
			external_id,
			subject_iss,
			subject_sub,
			identifier,
			given_name,
			family_name,
			birth_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		uuid.New(),
		s.issuer,
		string(subject),
		strings.TrimSpace(string(p.Identifier)),
		p.GivenName,
		p.FamilyName,
		dateOnly(p.BirthDate),
	).Scan(&createdAt)
	if err != nil {
		return domain.UserProfile{}, mapError(err)
	}

	p.SubjectID = subject
	p.BirthDate = dateOnly(p.BirthDate)
	p.CreatedAt = createdAt.UTC()
	return p, nil
}

func (s *Store) ReadProfile(ctx context.Context, subject domain.SubjectID) (domain.UserProfile, error) {
	if s.pool == nil {
		return domain.UserProfile{}, errors.New("nil postgres pool")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT subject_sub, identifier, given_name, family_name, birth_date, created_at
		FROM profiles
		WHERE subject_iss = $1 AND subject_sub = $2
	`, s.issuer, string(subject))
	if err != nil {
		return domain.UserProfile{}, mapError(err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProfile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, profilestore.ErrNotFound
		}
		return domain.UserProfile{}, mapError(err)
	}
	return p, nil
}

func scanProfile(row pgx.CollectableRow) (domain.UserProfile, error) {
	var (
		p       domain.UserProfile
		subject string
		ident   string
	)
	if err := row.Scan(&subject, &ident, &p.GivenName, &p.FamilyName, &p.BirthDate, &p.CreatedAt); err != nil {
		return domain.UserProfile{}, err
	}
	p.SubjectID = domain.SubjectID(subject)
	p.Identifier = domain.Identifier(ident)
	p.BirthDate = dateOnly(p.BirthDate)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func mapError(err error) error {
	if pe, ok := postgres.AsPgError(err); ok {
		switch pe.Code {
		case postgres.UniqueViolationCode:
			switch pe.ConstraintName {
			case "profiles_subject_unique":
				return profilestore.ErrSubjectAlreadyBound
			case "profiles_identifier_unique":
				return profilestore.ErrIdentifierTaken
			}
		case postgres.InsufficientPrivilegeCode:
			return fmt.Errorf("%w: %s", profilestore.ErrPermissionDenied, pe.Message)
		}
		return err
	}
	if postgres.IsUnreachable(err) {
		return fmt.Errorf("%w: %v", profilestore.ErrUnavailable, err)
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
