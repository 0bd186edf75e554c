// Package users manages storefront accounts and keeps them aligned with the
// external identity provider.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/postcommit"
)

// IdentityProvider mirrors local profile changes to the remote identity.
type IdentityProvider interface {
	UpdateUser(ctx context.Context, externalID string, p Profile) error
	DeleteUser(ctx context.Context, externalID string) error
}

// Profile is the subset of a user the identity provider stores.
type Profile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

type Service struct {
	store  Store
	idp    IdentityProvider
	after  *postcommit.Runner
	logger *zap.Logger
	newID  func() string
}

func NewService(store Store, idp IdentityProvider, after *postcommit.Runner, logger *zap.Logger) *Service {
	return &Service{store: store, idp: idp, after: after, logger: logger, newID: uuid.NewString}
}

func normalizeInput(in Input, defaultRole Role) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if in.Name == "" {
		return in, apperr.Invalid("name is required")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return in, apperr.Invalid("a valid email is required")
	}
	if in.Role == "" {
		in.Role = defaultRole
	}
	if !in.Role.Valid() {
		return in, apperr.Invalid("role must be admin or customer")
	}
	return in, nil
}

func (s *Service) Register(ctx context.Context, in Input) (*User, error) {
	in, err := normalizeInput(in, RoleCustomer)
	if err != nil {
		return nil, err
	}
	u := User{
		ID:         s.newID(),
		Name:       in.Name,
		Email:      in.Email,
		Role:       in.Role,
		ExternalID: strings.TrimSpace(in.ExternalID),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, classify(err, "create user")
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return s.Get(ctx, u.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, classify(err, "get user")
	}
	if u == nil {
		return nil, apperr.New(apperr.ErrNotFound, "user %s not found", id)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	us, err := s.store.List(ctx)
	if err != nil {
		return nil, classify(err, "list users")
	}
	return us, nil
}

// Update changes the local record and then, best effort, the remote identity.
// An empty role keeps the current one.
func (s *Service) Update(ctx context.Context, id string, in Input) (*User, error) {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err = normalizeInput(in, prev.Role)
	if err != nil {
		return nil, err
	}
	next := *prev
	next.Name, next.Email, next.Role = in.Name, in.Email, in.Role
	if ext := strings.TrimSpace(in.ExternalID); ext != "" {
		next.ExternalID = ext
	}
	if err := s.store.Update(ctx, *prev, next); err != nil {
		return nil, classify(err, "update user")
	}

	if next.ExternalID != "" {
		profile := Profile{Name: next.Name, Email: next.Email, Role: next.Role}
		s.after.Go("identity provider update", func(ctx context.Context) error {
			return s.idp.UpdateUser(ctx, next.ExternalID, profile)
		}, zap.String("user_id", id))
	}
	return s.Get(ctx, id)
}

// Delete removes the local record and then, best effort, the remote identity.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.store.Delete(ctx, id)
	if err != nil {
		return classify(err, "delete user")
	}
	s.logger.Info("user deleted", zap.String("user_id", id))
	if u.ExternalID != "" {
		s.after.Go("identity provider delete", func(ctx context.Context) error {
			return s.idp.DeleteUser(ctx, u.ExternalID)
		}, zap.String("user_id", id))
	}
	return nil
}

// SyncInput is the identity provider's view of an account.
type SyncInput struct {
	ExternalID string
	Name       string
	Email      string
	Role       Role
}

// SyncFromProvider upserts the user linked to in.ExternalID. It reports
// whether a new local user was created. Nothing is pushed back to the provider.
func (s *Service) SyncFromProvider(ctx context.Context, in SyncInput) (*User, bool, error) {
	ext := strings.TrimSpace(in.ExternalID)
	if ext == "" {
		return nil, false, apperr.Invalid("externalId is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(NormalizeEmail(in.Email), "@", 2)[0]
	}

	existing, err := s.store.GetByExternalID(ctx, ext)
	if err != nil {
		return nil, false, classify(err, "lookup user by external id")
	}
	if existing == nil {
		u, err := s.Register(ctx, Input{Name: name, Email: in.Email, Role: in.Role, ExternalID: ext})
		if err != nil {
			return nil, false, err
		}
		return u, true, nil
	}

	want, err := normalizeInput(Input{Name: name, Email: in.Email, Role: in.Role}, existing.Role)
	if err != nil {
		return nil, false, err
	}
	if want.Name == existing.Name && want.Email == existing.Email && want.Role == existing.Role {
		return existing, false, nil
	}
	next := *existing
	next.Name, next.Email, next.Role = want.Name, want.Email, want.Role
	if err := s.store.Update(ctx, *existing, next); err != nil {
		return nil, false, classify(err, "sync user")
	}
	s.logger.Info("user synced from identity provider", zap.String("user_id", existing.ID))
	u, err := s.Get(ctx, existing.ID)
	return u, false, err
}

func classify(err error, op string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Persistence(err, op)
}
