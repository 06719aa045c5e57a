package service

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

type UserService struct {
	store repository.Store
}

// UserPatch is the payload of update_user.
type UserPatch struct {
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=255"`
	Bio      *string `json:"bio" validate:"omitempty,max=2000"`
	Location *string `json:"location" validate:"omitempty,max=120"`
	IsAdmin  *bool   `json:"is_admin"`
	Password *string `json:"password"`
}

// UserProfile is what get_user returns. Email and favorites are only
// included for the user themselves and for admins.
type UserProfile struct {
	User   any            `json:"user"`
	Models []models.Model `json:"models"`
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

// List returns every account. Admin only.
func (s *UserService) List(ctx context.Context, actor Actor) (_ []models.User, err error) {
	ctx, end := startSpan(ctx, "user.list")
	defer end(&err)

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.Users().List(ctx)
}

// Profile returns a user with their models.
func (s *UserService) Profile(ctx context.Context, actor Actor, id string) (_ *UserProfile, err error) {
	ctx, end := startSpan(ctx, "user.profile", attribute.String("user.id", id))
	defer end(&err)

	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	owned, err := s.store.Models().ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}

	profile := &UserProfile{Models: owned}
	if actor.CanManage(id) {
		profile.User = user
	} else {
		profile.User = user.Public()
	}
	return profile, nil
}

// Update edits a profile. Users edit themselves and admins edit anyone;
// only admins change is_admin, and nobody changes another user's password.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, in UserPatch) (_ *models.User, err error) {
	ctx, end := startSpan(ctx, "user.update", attribute.String("user.id", id))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if !actor.CanManage(id) {
		return nil, models.NewForbiddenError("You can only edit your own profile")
	}
	if in.IsAdmin != nil {
		if !actor.IsAdmin {
			return nil, models.NewForbiddenError("Only admins can change admin status")
		}
		if id == actor.ID && !*in.IsAdmin {
			return nil, models.NewConflictError("You cannot remove your own admin status")
		}
	}
	if in.Password != nil && id != actor.ID {
		return nil, models.NewForbiddenError("You can only change your own password")
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		in.Email = &email
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Password != nil {
		if err := validation.ValidatePassword(*in.Password); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	err = s.store.Users().Update(ctx, id, repository.UserUpdate{
		Email:    in.Email,
		Avatar:   in.Avatar,
		Bio:      in.Bio,
		Location: in.Location,
		IsAdmin:  in.IsAdmin,
	})
	if err != nil {
		return nil, err
	}
	if in.Password != nil {
		if err := s.store.Users().SetPassword(ctx, id, *in.Password); err != nil {
			return nil, err
		}
		middleware.Logger.InfoContext(ctx, "password changed", slog.String("user_id", id))
	}
	return s.store.Users().GetByID(ctx, id)
}

// Delete removes an account with all of its models. Admin only; admins
// cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) (err error) {
	ctx, end := startSpan(ctx, "user.delete", attribute.String("user.id", id))
	defer end(&err)

	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return models.NewConflictError("You cannot delete your own account")
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateCategories(ctx)
	middleware.Logger.InfoContext(ctx, "user deleted", slog.String("user_id", id), slog.String("deleted_by", actor.ID))
	return nil
}

// SetAdmin promotes or demotes the user with the given username or id.
// It backs the admin CLI and bypasses actor checks.
func (s *UserService) SetAdmin(ctx context.Context, login string, admin bool) (*models.User, error) {
	user, err := s.lookup(ctx, login)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Update(ctx, user.ID, repository.UserUpdate{IsAdmin: &admin}); err != nil {
		return nil, err
	}
	user.IsAdmin = admin
	return user, nil
}

// Admins lists the accounts with admin rights.
func (s *UserService) Admins(ctx context.Context) ([]models.User, error) {
	all, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, err
	}
	admins := make([]models.User, 0)
	for _, u := range all {
		if u.IsAdmin {
			admins = append(admins, u)
		}
	}
	return admins, nil
}

func (s *UserService) lookup(ctx context.Context, login string) (*models.User, error) {
	user, err := s.store.Users().GetByUsername(ctx, login)
	if models.IsNotFound(err) {
		user, err = s.store.Users().GetByEmail(ctx, login)
	}
	if models.IsNotFound(err) {
		user, err = s.store.Users().GetByID(ctx, login)
	}
	return user, err
}
