package content

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"lichka/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const DefaultMaxLength = 4000

var (
	policy        = bluemonday.UGCPolicy()
	markdown      = goldmark.New()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	idRegex       = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
)

// Sanitize removes unsafe HTML from the input string.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Render converts message markdown to HTML safe for display.
// Raw HTML in the source is dropped by goldmark, the result is sanitized
// once more on top of that.
func Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

// ValidateContent checks a message body: valid UTF-8, not blank, at most
// maxLen characters. A non-positive maxLen means DefaultMaxLength.
func ValidateContent(body string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: content is not valid UTF-8", models.ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: content cannot be empty", models.ErrValidation)
	}
	if n := utf8.RuneCountInString(body); n > maxLen {
		return fmt.Errorf("%w: content is %d characters long, limit is %d", models.ErrValidation, n, maxLen)
	}
	return nil
}

// ValidateID checks that an opaque user or message id is well formed.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: malformed id %q", models.ErrValidation, id)
	}
	return nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", models.ErrValidation)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)", models.ErrValidation)
	}
	return nil
}
