package service

import (
	"strings"
	"unicode/utf8"
)

// ChunkConfig controls how raw segments are bounded before embedding.
type ChunkConfig struct {
	// MaxChars is the length above which a segment is re-split by words.
	MaxChars int
	// WordsPerChunk is the bin size used when a segment is re-split.
	WordsPerChunk int
}

// DefaultChunkConfig provides the production thresholds.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:      1000,
		WordsPerChunk: 200,
	}
}

// Chunker normalises raw text segments into bounded chunks.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) *Chunker {
	def := DefaultChunkConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.WordsPerChunk <= 0 {
		cfg.WordsPerChunk = def.WordsPerChunk
	}
	return &Chunker{cfg: cfg}
}

// Chunk trims every segment, drops empty ones and word-splits long ones.
// Output order follows input order. Binning is by word count, so a chunk made
// of very long words can still exceed MaxChars.
func (c *Chunker) Chunk(segments []string) []string {
	chunks := make([]string, 0, len(segments))
	for _, segment := range segments {
		clean := strings.TrimSpace(segment)
		if clean == "" {
			continue
		}
		if utf8.RuneCountInString(clean) <= c.cfg.MaxChars {
			chunks = append(chunks, clean)
			continue
		}
		chunks = append(chunks, splitWords(clean, c.cfg.WordsPerChunk)...)
	}
	return chunks
}

func splitWords(text string, size int) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words)/size+1)
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}
