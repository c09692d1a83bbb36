package core

import "regexp"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidUserID reports whether id can be used as a namespace segment.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}
