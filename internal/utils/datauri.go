package utils

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

const imageDataURIPrefix = "data:image/"

// ImageSubtype returns the part of filename after the last dot, or "" if there is none.
func ImageSubtype(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx+1:]
}

// FormatImageDataURI wraps raw image bytes as data:image/<subtype>;base64,<payload>.
func FormatImageDataURI(content []byte, subtype string) string {
	return imageDataURIPrefix + subtype + ";base64," + base64.StdEncoding.EncodeToString(content)
}

// TruncateRunes returns at most n characters of s, counting runes rather than bytes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
