// Package sanitize cleans untrusted input before it reaches the pipeline:
// question text, uploaded file names and folder paths.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MinQuestionLength is the minimum question length in runes.
	MinQuestionLength = 3

	// MinImagePromptLength is the minimum image prompt length in runes.
	// Image generation lives outside this module.
	MinImagePromptLength = 5

	// DefaultFilename replaces names that sanitize to nothing usable.
	DefaultFilename = "upload"
)

// ErrTooShort indicates input below the minimum length after sanitizing.
var ErrTooShort = errors.New("input too short")

// unsafeFilenameChars matches anything other than letters, digits, underscore, hyphen and dot.
var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)

// StripMarkup removes HTML tags and returns the remaining text, trimmed.
// Script and style bodies are dropped entirely.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text())
}

// Question strips markup from a user question and enforces MinQuestionLength.
func Question(raw string) (string, error) {
	return minLength(StripMarkup(raw), MinQuestionLength)
}

func minLength(s string, n int) (string, error) {
	if utf8.RuneCountInString(s) < n {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrTooShort, n)
	}
	return s, nil
}

// Filename replaces every character outside [letters digits _ - .] with an
// underscore, so uploaded names are safe to use as a source identifier.
//
// Examples:
//
//	"my report (v2).pdf" -> "my_report__v2_.pdf"
//	"../../etc/passwd"   -> ".._.._etc_passwd"
func Filename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if strings.Trim(sanitized, "._") == "" {
		return DefaultFilename
	}
	return sanitized
}
