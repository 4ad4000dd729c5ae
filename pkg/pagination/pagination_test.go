package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorRoundTripIsQuerySafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorEmptyIsFirstPage(t *testing.T) {
	out, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"!!!", "bm8tc2VwYXJhdG9y", "eHx5"} {
		_, err := ParseCursor(raw)
		require.Error(t, err, raw)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), raw)
	}
}

func TestTrim(t *testing.T) {
	key := func(n int) Cursor { return Cursor{CreatedAt: time.Unix(int64(n), 0)} }

	rows, next := Trim([]int{5, 4, 3}, 3, key)
	assert.Equal(t, []int{5, 4, 3}, rows)
	assert.Nil(t, next)

	rows, next = Trim([]int{5, 4, 3, 2}, 3, key)
	assert.Equal(t, []int{5, 4, 3}, rows)
	require.NotNil(t, next)
	assert.Equal(t, int64(3), next.CreatedAt.Unix())
}

func TestColumnQualifies(t *testing.T) {
	assert.Equal(t, "created_at", column("", "created_at"))
	assert.Equal(t, "payout_requests.id", column("payout_requests", "id"))
}
