package middleware

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v3"
)

// Field length limits matching database schema constraints.
const (
	MaxPostIDLen   = 32 // posts.post_id VARCHAR(32)
	MaxAnswerIDLen = 32
	MaxLabelLen    = 64
	MaxUserIDLen   = 64 // profiles.user_id VARCHAR(64)
)

var (
	// idRe matches post and answer ids: alphanumeric, dash, underscore.
	idRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// userIDRe matches user ids: hex hashes issued by the identity provider.
	userIDRe = regexp.MustCompile(`^[0-9a-f]+$`)
)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidatePostID checks that a post id is well-formed and within DB limits.
func ValidatePostID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "postId is required"
	}
	if len(id) > MaxPostIDLen {
		return "", "postId must be at most 32 characters"
	}
	if !idRe.MatchString(id) {
		return "", "postId contains invalid characters"
	}
	return id, ""
}

// ValidateAnswerID checks an answer id. Empty is allowed: the engine then
// scans the post's answers for the first label with a matching name.
func ValidateAnswerID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ""
	}
	if len(id) > MaxAnswerIDLen {
		return "", "answerId must be at most 32 characters"
	}
	if !idRe.MatchString(id) {
		return "", "answerId contains invalid characters"
	}
	return id, ""
}

// ValidateLabelName checks a totem name. Matching is case-sensitive and
// exact, so the input is not normalized beyond trimming.
func ValidateLabelName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "label is required"
	}
	if len(name) > MaxLabelLen {
		return "", "label must be at most 64 bytes"
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", "label contains control characters"
		}
	}
	return name, ""
}

// ValidateUserID checks that a user id is a valid hex hash. The identity
// provider authenticates users; this only rejects malformed values.
func ValidateUserID(id string) (string, string) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return "", "userId is required"
	}
	if len(id) > MaxUserIDLen {
		return "", "userId must be at most 64 characters"
	}
	if !userIDRe.MatchString(id) {
		return "", "userId must be a hexadecimal hash"
	}
	return id, ""
}
