package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

const testSecret = "test-secret-at-least-32-characters-long"

func TestRegisterAndVerify(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)
	ctx := context.Background()

	sess, err := auth.Register(ctx, RegisterInput{Username: " carol ", Email: "carol@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "carol", sess.User.Username)
	assert.False(t, sess.User.IsAdmin)

	id, err := auth.VerifyToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id.UserID)
	assert.False(t, id.IsAdmin)
	assert.NotEmpty(t, id.TokenID)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(sess.Token, claims)
	require.NoError(t, err)
	assert.Equal(t, TokenIssuer, claims["iss"])
	assert.Equal(t, "carol", claims["username"])
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)

	tests := []struct {
		name string
		in   RegisterInput
		code string
	}{
		{"short username", RegisterInput{Username: "ab", Email: "ab@example.com", Password: "secret1"}, models.CodeValidation},
		{"bad characters", RegisterInput{Username: "bad name", Email: "b@example.com", Password: "secret1"}, models.CodeValidation},
		{"bad email", RegisterInput{Username: "dave", Email: "not-an-email", Password: "secret1"}, models.CodeValidation},
		{"short password", RegisterInput{Username: "dave", Email: "dave@example.com", Password: "123"}, models.CodeValidation},
		{"taken username", RegisterInput{Username: "ALICE", Email: "other@example.com", Password: "secret1"}, models.CodeConflict},
		{"taken email", RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "secret1"}, models.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Register(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)
	ctx := context.Background()

	for _, login := range []string{"alice", "ALICE", "Alice@Example.com"} {
		sess, err := auth.Login(ctx, login, "secret1")
		require.NoError(t, err, login)
		assert.Equal(t, f.alice.ID, sess.User.ID)
	}

	_, err := auth.Login(ctx, "alice", "wrong-pass")
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
	_, errUnknown := auth.Login(ctx, "nobody", "secret1")
	assert.Equal(t, err.Error(), errUnknown.Error())

	_, err = auth.Login(ctx, "", "")
	assert.True(t, models.IsValidation(err))
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)
	ctx := context.Background()
	alice, err := f.store.Users().GetByID(ctx, f.alice.ID)
	require.NoError(t, err)

	other := NewAuthService(f.store.Users(), "another-secret-with-32-characters!!")
	forged, _, err := other.IssueToken(alice)
	require.NoError(t, err)

	past := NewAuthService(f.store.Users(), testSecret)
	past.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, _, err := past.IssueToken(alice)
	require.NoError(t, err)

	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   alice.ID,
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   alice.ID,
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not.a.token",
		"forged":         forged,
		"expired":        expired,
		"wrong audience": wrongAudience,
		"none alg":       noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.VerifyToken(ctx, token)
			assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
		})
	}
}

func TestVerifyReadsCurrentAdminFlag(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)
	ctx := context.Background()

	sess, err := auth.Login(ctx, "bob", "secret1")
	require.NoError(t, err)

	promote := true
	require.NoError(t, f.store.Users().Update(ctx, f.bob.ID, repository.UserUpdate{IsAdmin: &promote}))
	id, err := auth.VerifyToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin)

	require.NoError(t, f.store.Users().Delete(ctx, f.bob.ID))
	_, err = auth.VerifyToken(ctx, sess.Token)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

func TestLogoutRevokesToken(t *testing.T) {
	mr := withMiniredis(t)
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)
	ctx := context.Background()

	sess, err := auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	id, err := auth.VerifyToken(ctx, sess.Token)
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, sess.Token))
	assert.True(t, mr.Exists("jwt:blacklist:"+id.TokenID))
	ttl := mr.TTL("jwt:blacklist:" + id.TokenID)
	assert.InDelta(t, TokenTTL.Seconds(), ttl.Seconds(), 60)

	_, err = auth.VerifyToken(ctx, sess.Token)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	fresh, err := auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	_, err = auth.VerifyToken(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestMissingSecretIsInternal(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), "")

	_, err := auth.Login(context.Background(), "alice", "secret1")
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
	_, err = auth.VerifyToken(context.Background(), "x.y.z")
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.store.Users(), testSecret)

	_, err := auth.CurrentUser(context.Background(), Actor{})
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	u, err := auth.CurrentUser(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)
	assert.True(t, u.IsAdmin)
}
