package storage

import "fmt"

// Conceptual key layout shared by the credential manager, the rate
// limiter and the CLI. Kept in one place so the shapes stay consistent.
const (
	// SelectedUserKey points at the user the CLI operates on when no
	// --user or --token flag is given
	SelectedUserKey = "SelectedUser"

	// AccountKeyPrefix groups the stored account records for listing
	AccountKeyPrefix = "Account."
)

// AccountKey stores the account record for a Nintendo Account user ID
func AccountKey(userID string) string {
	return AccountKeyPrefix + userID
}

// TokenKey stores a CachedCredentialSet for a service, keyed by the raw
// session token
func TokenKey(service, rawToken string) string {
	return fmt.Sprintf("Token.%s.%s", service, rawToken)
}

// SubjectTokenKey is the secondary index mapping a user ID back to the
// raw session token that produced it
func SubjectTokenKey(service, userID string) string {
	return fmt.Sprintf("SubjectToken.%s.%s", service, userID)
}

// RateLimitKey stores the attempt timestamp log for a (purpose, subject)
func RateLimitKey(purpose, subject string) string {
	return fmt.Sprintf("RateLimitAttempts.%s.%s", purpose, subject)
}

// PresenceKey stores the latest presence snapshot for a user
func PresenceKey(userID string) string {
	return fmt.Sprintf("Presence.%s", userID)
}

// PresenceRecordKey stores an individual presence change record
func PresenceRecordKey(id string) string {
	return fmt.Sprintf("PresenceRecord.%s", id)
}
