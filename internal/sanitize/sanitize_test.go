package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "  What is RAG?  ", "What is RAG?"},
		{"tags removed", "<b>What</b> is <i>RAG</i>?", "What is RAG?"},
		{"script body dropped", "hello<script>alert(1)</script>", "hello"},
		{"entities decoded", "fish &amp; chips", "fish & chips"},
		{"only markup", "<p></p>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.input))
		})
	}
}

func TestQuestion(t *testing.T) {
	q, err := Question("  <em>What is RAG?</em> ")
	require.NoError(t, err)
	assert.Equal(t, "What is RAG?", q)

	_, err = Question("hi")
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = Question("<b>hi</b>")
	assert.ErrorIs(t, err, ErrTooShort)

	// Length is counted in runes.
	q, err = Question("日本語")
	require.NoError(t, err)
	assert.Equal(t, "日本語", q)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (v2).pdf", "my_report__v2_.pdf"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"notes-2024_final.txt", "notes-2024_final.txt"},
		{"résumé.pdf", "résumé.pdf"},
		{"", DefaultFilename},
		{"..", DefaultFilename},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.input))
		})
	}
}
