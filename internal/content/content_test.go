package content

import (
	"strings"
	"testing"

	"lichka/internal/models"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRender(t *testing.T) {
	html, err := Render("**hi** there")
	require.NoError(t, err)
	require.Contains(t, html, "<strong>hi</strong>")

	html, err = Render("<script>alert('xss')</script>")
	require.NoError(t, err)
	require.NotContains(t, html, "<script")

	html, err = Render("[link](javascript:alert(1))")
	require.NoError(t, err)
	require.NotContains(t, html, "javascript:")
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLen  int
		wantErr bool
	}{
		{"Simple", "hi", 0, false},
		{"Blank", "   \n\t", 0, true},
		{"Empty", "", 0, true},
		{"Exactly at limit", "ab", 2, false},
		{"Over limit", "abc", 2, true},
		{"Runes not bytes", "🤖🤖", 2, false},
		{"Invalid UTF-8", string([]byte{0xff, 0xfe}), 0, true},
		{"Default limit", strings.Repeat("x", DefaultMaxLength+1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.input, tt.maxLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				require.ErrorIs(t, err, models.ErrValidation)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("3f2b8c1e-7a2d-4c55-9d0e-1b2c3d4e5f60"))
	require.NoError(t, ValidateID("user_1"))
	require.ErrorIs(t, ValidateID(""), models.ErrValidation)
	require.ErrorIs(t, ValidateID("../etc"), models.ErrValidation)
	require.ErrorIs(t, ValidateID(strings.Repeat("a", 129)), models.ErrValidation)
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid alphanumeric", "user123", false},
		{"Valid with dot", "user.name", false},
		{"Valid with dash", "user-name", false},
		{"Valid with underscore", "user_name", false},
		{"Invalid space", "user name", true},
		{"Invalid special char", "user@name", true},
		{"Invalid script", "<script>", true},
		{"Empty", "", true},
		{"Mixed case", "User.Name-123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateUsername(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
