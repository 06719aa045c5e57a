package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// Token claims shared by every issued JWT.
const (
	TokenIssuer   = "fecstl-api"
	TokenAudience = "fecstl-client"
	TokenTTL      = 7 * 24 * time.Hour
)

var errInvalidToken = models.NewUnauthorizedError("Invalid or expired token")

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService registers users, issues tokens and resolves them back into
// callers. It implements middleware.TokenVerifier.
type AuthService struct {
	users  repository.UserRepository
	secret []byte
	now    func() time.Time
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Session is returned by Register and Login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func NewAuthService(users repository.UserRepository, secret string) *AuthService {
	return &AuthService{users: users, secret: []byte(secret), now: time.Now}
}

// Register creates a regular user and logs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (_ *Session, err error) {
	ctx, end := startSpan(ctx, "auth.register")
	defer end(&err)

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	id, err := s.users.Create(ctx, repository.NewUser{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.newSession(user)
}

// Login authenticates by username or email.
func (s *AuthService) Login(ctx context.Context, login, password string) (_ *Session, err error) {
	ctx, end := startSpan(ctx, "auth.login")
	defer end(&err)

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}
	user, err := s.users.Authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}
	return s.newSession(user)
}

func (s *AuthService) newSession(user *models.User) (*Session, error) {
	token, exp, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// IssueToken signs an HS256 token for user.
func (s *AuthService) IssueToken(user *models.User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, models.NewInternalError(errors.New("JWT secret not configured"))
	}

	now := s.now()
	exp := now.Add(TokenTTL)
	claims := tokenClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, models.NewInternalError(err)
	}
	return signed, exp, nil
}

func (s *AuthService) parse(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// VerifyToken resolves token into the caller. The admin flag is read from
// the store so promotions and demotions apply to existing sessions.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*middleware.Identity, error) {
	if len(s.secret) == 0 {
		return nil, models.NewInternalError(errors.New("JWT secret not configured"))
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := cache.IsRevoked(ctx, claims.ID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "token blacklist lookup failed", slog.String("error", err.Error()))
	}
	if revoked {
		return nil, models.NewUnauthorizedError("Token has been revoked")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, errInvalidToken
		}
		return nil, err
	}
	return &middleware.Identity{
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
		TokenID: claims.ID,
		Token:   token,
	}, nil
}

// Logout revokes token for the rest of its lifetime. Without Redis the
// token stays valid until it expires and the client is expected to drop it.
func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	ctx, end := startSpan(ctx, "auth.logout")
	defer end(&err)

	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := cache.Revoke(ctx, claims.ID, ttl); err != nil {
		return models.NewInternalError(err)
	}
	middleware.Logger.InfoContext(ctx, "user logged out", slog.String("user_id", claims.Subject))
	return nil
}

// CurrentUser returns the full record of a logged-in caller.
func (s *AuthService) CurrentUser(ctx context.Context, actor Actor) (_ *models.User, err error) {
	ctx, end := startSpan(ctx, "auth.current_user", attribute.String("user.id", actor.ID))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, actor.ID)
}
