package chunking

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidChunkConfig indicates a size/overlap pair that cannot make progress.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Config holds the size and overlap of a chunking profile, in characters.
type Config struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// DocumentConfig is the profile used for uploaded and folder documents.
func DocumentConfig() Config {
	return Config{Size: 1000, Overlap: 200}
}

// WebConfig is the profile used for scraped pages and plain text.
func WebConfig() Config {
	return Config{Size: 500, Overlap: 100}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunkConfig, c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkConfig, c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, c.Overlap, c.Size)
	}
	return nil
}

// Splitter splits cleaned text into chunks for one profile.
type Splitter struct {
	config Config
}

// NewSplitter creates a Splitter. Use Config.Validate to check the
// parameters up front; Chunks reports the same error lazily.
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{config: Config{Size: size, Overlap: overlap}}
}

// NewSplitterFromConfig creates a Splitter from a Config.
func NewSplitterFromConfig(cfg Config) *Splitter {
	return &Splitter{config: cfg}
}

// Config returns the splitter's profile.
func (s *Splitter) Config() Config {
	return s.config
}

// Chunks splits text and tags every piece with metadata for source.
// Ids are sequential over the produced chunks: "<source>_0", "<source>_1", ...
func (s *Splitter) Chunks(source, text string) ([]Chunk, error) {
	pieces, err := Split(text, s.config.Size, s.config.Overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			Text: piece,
			Metadata: Metadata{
				Source:  source,
				ChunkID: ChunkID(source, i),
			},
		}
	}
	return chunks, nil
}

// Split breaks text into windows of at most size runes.
//
// Window i+1 starts exactly overlap runes before window i ends, so dropping
// the first overlap runes of every window after the first reconstructs text.
// Window ends prefer a paragraph break, then a sentence end, then whitespace,
// and fall back to a hard cut at size. The last window may be shorter.
func Split(text string, size, overlap int) ([]string, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for {
		if n-start <= size {
			chunks = append(chunks, string(runes[start:]))
			return chunks, nil
		}

		// end is searched in (start+overlap, start+size] so the next window
		// always starts after the current one.
		end := findBoundary(runes, start+overlap+1, start+size)
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
}

// Reconstruct reverses Split for the given overlap.
func Reconstruct(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			if overlap > len(r) {
				continue
			}
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}

// findBoundary returns the best exclusive end index in [lo, hi].
func findBoundary(runes []rune, lo, hi int) int {
	if lo > hi {
		return hi
	}
	if end := scanBack(runes, lo, hi, isParagraphEnd); end > 0 {
		return end
	}
	if end := scanBack(runes, lo, hi, isSentenceEnd); end > 0 {
		return end
	}
	if end := scanBack(runes, lo, hi, isWordEnd); end > 0 {
		return end
	}
	return hi
}

func scanBack(runes []rune, lo, hi int, match func([]rune, int) bool) int {
	for end := hi; end >= lo; end-- {
		if match(runes, end) {
			return end
		}
	}
	return -1
}

func isParagraphEnd(runes []rune, end int) bool {
	return end >= 2 && runes[end-1] == '\n' && runes[end-2] == '\n'
}

func isSentenceEnd(runes []rune, end int) bool {
	if end < 2 || !unicode.IsSpace(runes[end-1]) {
		return false
	}
	switch runes[end-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isWordEnd(runes []rune, end int) bool {
	return end >= 1 && unicode.IsSpace(runes[end-1])
}
