package auth

import "encoding/base64"

// EncodePassword returns the mock "hash" stored in account records.
// It is plain base64 and trivially reversible; accounts here are demo only.
func EncodePassword(password string) string {
	return base64.StdEncoding.EncodeToString([]byte(password))
}

// CheckPassword compares a raw password against its stored encoding.
func CheckPassword(password, stored string) bool {
	return EncodePassword(password) == stored
}
