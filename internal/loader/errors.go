// Package loader extracts raw text from PDF files, plain text files and web pages.
//
// Every loader returns a Unit carrying the extracted text and the source
// identifier that chunk ids are derived from. Failures are reported with
// ErrLoad or, for network sources, a *FetchError that also matches ErrFetch.
package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad indicates a source that could not be read or parsed.
	ErrLoad = errors.New("load failed")

	// ErrFetch indicates a network or HTTP failure while loading a URL.
	ErrFetch = errors.New("fetch failed")
)

// FetchError describes a failed web fetch.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying transport error, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetch.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Unit is the raw text extracted from one source.
type Unit struct {
	Source string
	Text   string

	// Truncated is set when the text was cut to the loader's size limit.
	Truncated bool
}
