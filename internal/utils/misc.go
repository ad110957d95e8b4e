package utils

import "strings"

// ContainsFold reports whether value matches any item, ignoring case.
func ContainsFold(slice []string, value string) bool {
	for _, item := range slice {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// BaseURLName returns the last non-empty path segment of a URL, without its
// query or fragment.
func BaseURLName(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
