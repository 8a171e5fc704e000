package profilestore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eskate/storefront-api/internal/domain"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

// Store is an in-memory implementation of profilestore.Store.
// It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	clk clockport.Clock

	bySubject      map[domain.SubjectID]domain.UserProfile
	subjectByIdent map[string]domain.SubjectID
}

func NewStore(clk clockport.Clock) *Store {
	return &Store{
		clk:            clk,
		bySubject:      make(map[domain.SubjectID]domain.UserProfile),
		subjectByIdent: make(map[string]domain.SubjectID),
	}
}

func (s *Store) QueryByField(ctx context.Context, field string, value string) ([]domain.UserProfile, error) {
	_ = ctx
	if field != profilestore.FieldIdentifier {
		return nil, profilestore.ErrUnsupportedField
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subjectByIdent[identKey(value)]
	if !ok {
		return []domain.UserProfile{}, nil
	}
	return []domain.UserProfile{s.bySubject[sub]}, nil
}

func (s *Store) WriteProfile(ctx context.Context, subject domain.SubjectID, p domain.UserProfile) (domain.UserProfile, error) {
	_ = ctx
	if subject == "" {
		return domain.UserProfile{}, profilestore.ErrPermissionDenied
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySubject[subject]; ok {
		return domain.UserProfile{}, profilestore.ErrSubjectAlreadyBound
	}
	key := identKey(string(p.Identifier))
	if _, ok := s.subjectByIdent[key]; ok {
		return domain.UserProfile{}, profilestore.ErrIdentifierTaken
	}

	p.SubjectID = subject
	p.CreatedAt = s.clk.Now().UTC()
	s.bySubject[subject] = p
	s.subjectByIdent[key] = subject
	return p, nil
}

func (s *Store) ReadProfile(ctx context.Context, subject domain.SubjectID) (domain.UserProfile, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.bySubject[subject]
	if !ok {
		return domain.UserProfile{}, profilestore.ErrNotFound
	}
	return p, nil
}

// List returns every stored profile ordered by identifier.
func (s *Store) List() []domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserProfile, 0, len(s.bySubject))
	for _, p := range s.bySubject {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

// Identifiers are matched exactly; surrounding whitespace is not significant.
func identKey(v string) string {
	return strings.TrimSpace(v)
}
