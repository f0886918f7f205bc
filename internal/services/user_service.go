// Package services – UserService
//
// UserService manages the user rows the exchange needs: registration of a
// handle and e-mail, lookups, the inbox watermark and the legacy unread count
// derived from it.

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewUser is the input to CreateUser.
type NewUser struct {
	Username string `validate:"required,min=3,max=64,alphanum"`
	Email    string `validate:"required,email,max=120"`
	AboutMe  string `validate:"max=140"`
}

// UserService provides user operations.
type UserService struct {
	DB       *gorm.DB
	Validate *validator.Validate
}

func (s *UserService) tracer() trace.Tracer { return otel.Tracer("services/UserService") }

func (s *UserService) validate() *validator.Validate {
	if s.Validate == nil {
		return defaultValidate
	}
	return s.Validate
}

// CreateUser registers a new user. A taken username or e-mail is a Conflict.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "CreateUser",
		trace.WithAttributes(attribute.String("user.username", in.Username)),
	)
	defer span.End()

	const op = "create_user"
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.AboutMe = strings.TrimSpace(in.AboutMe)
	if err := s.validate().Struct(in); err != nil {
		return nil, &Error{Kind: KindInvalid, Op: op, Msg: "invalid user", Err: err}
	}

	u := &domain.User{Username: in.Username, Email: in.Email, AboutMe: in.AboutMe}
	err := repo.CreateUser(ctx, s.DB, u)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, newErr(KindConflict, op, "username or email already taken")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns the user with id.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "GetUser",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	return loadUser(ctx, s.DB, "get_user", id)
}

// GetUserByUsername returns the user with the given handle.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "GetUserByUsername",
		trace.WithAttributes(attribute.String("user.username", username)),
	)
	defer span.End()

	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newErr(KindNotFound, "get_user", "user %s not found", username)
	}
	return u, err
}

// LegacyUnreadCount counts visible messages received since the user last
// opened their inbox, ignoring per-message read flags.
func (s *UserService) LegacyUnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "LegacyUnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := loadUser(ctx, s.DB, "legacy_unread", userID)
	if err != nil {
		return 0, err
	}
	return repo.CountReceivedSince(ctx, s.DB, userID, u.LastMessageReadTime)
}

// TouchInbox moves the user's inbox watermark and last-seen time to now.
func (s *UserService) TouchInbox(ctx context.Context, userID string) error {
	ctx, span := s.tracer().Start(ctx, "TouchInbox",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	err := repo.TouchInbox(ctx, s.DB, userID, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return newErr(KindNotFound, "touch_inbox", "user %s not found", userID)
	}
	return err
}
