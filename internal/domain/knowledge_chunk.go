package domain

import (
	"strings"
	"time"
)

// Chunk is a unit of retrievable knowledge stored with its embedding.
type Chunk struct {
	ID        int64
	Content   string
	Embedding []float32
	Source    string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	// Distance is the cosine distance to the query vector. Only set on
	// nearest-neighbor results.
	Distance float64
}

// NewChunk creates a chunk ready to be staged for insertion.
func NewChunk(content, source string, metadata map[string]any, embedding []float32) *Chunk {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Chunk{
		Content:   content,
		Source:    source,
		Metadata:  metadata,
		Embedding: embedding,
	}
}

// HasEmbedding reports whether the chunk carries a vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ValidateChunk enforces the persisted-chunk invariant.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return ErrMissingRequiredField
	}
	if strings.TrimSpace(c.Content) == "" {
		return NewDomainError(ErrCodeValidation, "chunk content cannot be empty")
	}
	if strings.TrimSpace(c.Source) == "" {
		return NewDomainError(ErrCodeValidation, "chunk source cannot be empty")
	}
	return nil
}

// TableSource returns the source identifier used for rows of an external table.
func TableSource(table string) string {
	return "db:" + table
}

// TableSnapshot holds the rows read from one external table, values rendered as text.
type TableSnapshot struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// RenderRow formats one row as "Table: <name>" followed by "<col>: <val>" lines.
func (t *TableSnapshot) RenderRow(i int) string {
	var b strings.Builder
	b.WriteString("Table: ")
	b.WriteString(t.Name)
	for j, col := range t.Columns {
		b.WriteString("\n")
		b.WriteString(col)
		b.WriteString(": ")
		if j < len(t.Rows[i]) {
			b.WriteString(t.Rows[i][j])
		}
	}
	return b.String()
}
