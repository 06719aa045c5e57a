package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "secret1", false},
		{"Exactly Min Length", "abc123", false},
		{"Exactly Max Length", strings.Repeat("a", 72), false},
		{"Too Short", "abc12", true},
		{"Too Long", strings.Repeat("a", 73), true},
		{"Blank", "        ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid", "alice", false},
		{"Underscore", "print_farm_01", false},
		{"Min Length", "abc", false},
		{"Max Length", strings.Repeat("a", 20), false},
		{"Too Short", "ab", true},
		{"Too Long", strings.Repeat("a", 21), true},
		{"Hyphen", "alice-b", true},
		{"Space", "alice b", true},
		{"Unicode", "ålice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateEmail("alice@x.com"))
	assert.NoError(t, ValidateEmail("ADMIN@example.com"))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@x.com"))
}
