package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: "cmp_1"}

	decoded, err := Decode(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c.ID, decoded.ID)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, token := range []string{"%%%", "bm9waXBl", "MjAyNi0wMS0wMXw"} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 20, Limit(0, 20, 100))
	assert.Equal(t, 20, Limit(-5, 20, 100))
	assert.Equal(t, 7, Limit(7, 20, 100))
	assert.Equal(t, 100, Limit(500, 20, 100))
}

func TestPaginate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := func(n int) Cursor { return Cursor{CreatedAt: base.Add(time.Duration(n) * time.Minute), ID: string(rune('a' + n))} }

	page := Paginate([]int{3, 2, 1}, 2, key)
	assert.Equal(t, []int{3, 2}, page.Items)
	assert.True(t, page.HasMore)
	next, err := Decode(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "c", next.ID)

	last := Paginate([]int{1}, 2, key)
	assert.Equal(t, []int{1}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)

	empty := Paginate[int](nil, 2, key)
	assert.NotNil(t, empty.Items)
}
