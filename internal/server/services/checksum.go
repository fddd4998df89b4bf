package services

import (
	"regexp"
	"strings"

	"github.com/sparkleops/dbdistrib/internal/common"
)

// A 256-bit digest in hex, either case.
var sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// NormalizeSHA256 validates the checksum format and returns its canonical
// lowercase form. Anything that is not exactly 64 hex characters is rejected,
// never truncated or accepted as-is.
func NormalizeSHA256(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !sha256Pattern.MatchString(value) {
		return "", common.NewValidationError("sha256", "must be a 64-character hex SHA-256 digest")
	}
	return strings.ToLower(value), nil
}
