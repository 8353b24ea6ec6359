package utils

import (
	"strings" // String manipulation

	"github.com/google/uuid" // Random suffix source
)

// GenerateReferralCode builds the shareable code for a new user: up to four
// uppercased characters of the username followed by a four-character random
// suffix. Uniqueness is enforced by the database index; callers retry on a
// duplicate.
func GenerateReferralCode(username string) string {
	prefix := strings.ToUpper(username)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:4]
	return prefix + suffix
}
