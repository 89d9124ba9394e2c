package eventpage

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	slugAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	slugSuffixLength = 8
	maxSlugLength    = 50
)

// GenerateSlug derives a URL-safe slug from title and appends a random suffix.
func GenerateSlug(title string) (string, error) {
	suffix, err := gonanoid.Generate(slugAlphabet, slugSuffixLength)
	if err != nil {
		return "", err
	}
	base := slugify(title)
	maxBaseLength := maxSlugLength - slugSuffixLength - 1
	if len(base) > maxBaseLength {
		base = strings.TrimRight(base[:maxBaseLength], "-")
	}
	if base == "" {
		return suffix, nil
	}
	return base + "-" + suffix, nil
}

// slugify lower-cases title and collapses every run of characters outside [a-z0-9] into one dash.
func slugify(title string) string {
	var builder strings.Builder
	pendingDash := false
	for _, character := range strings.ToLower(title) {
		if (character >= 'a' && character <= 'z') || (character >= '0' && character <= '9') {
			if pendingDash && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingDash = false
			builder.WriteRune(character)
			continue
		}
		pendingDash = true
	}
	return builder.String()
}
