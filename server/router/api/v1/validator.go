package v1

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const maxTitleLength = 200

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", errors.Errorf("title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

func validateExportFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return "markdown", nil
	case "html":
		return "html", nil
	default:
		return "", errors.Errorf("unsupported export format %q", format)
	}
}
