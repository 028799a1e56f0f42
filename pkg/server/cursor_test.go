package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	original := pageCursor{Offset: 150, SortField: "end_time", Direction: domain.SortAsc}

	token := encodeCursor(original)
	decoded, err := decodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeCursor_Empty(t *testing.T) {
	decoded, err := decodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, pageCursor{}, decoded)
}

func TestDecodeCursor_Malformed(t *testing.T) {
	_, err := decodeCursor("not base64!!!")
	assert.Error(t, err)

	_, err = decodeCursor("bm90IGpzb24=") // valid base64, invalid JSON
	assert.Error(t, err)

	// Negative offsets are rejected.
	_, err = decodeCursor(encodeCursor(pageCursor{Offset: -1}))
	assert.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	from, to, err := parseTimeRange("2025-06-01T00:00:00Z", "2025-06-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), from)
	require.NotNil(t, to)

	// Inverted time ranges are input errors.
	_, _, err = parseTimeRange("2025-06-02T00:00:00Z", "2025-06-01T00:00:00Z")
	require.Error(t, err)
	assert.True(t, isInputError(err))

	_, _, err = parseTimeRange("yesterday", "")
	require.Error(t, err)
	assert.True(t, isInputError(err))
}

func TestParseSpanRange(t *testing.T) {
	minSpans, maxSpans, err := parseSpanRange("5", "10")
	require.NoError(t, err)
	assert.Equal(t, 5, minSpans)
	assert.Equal(t, 10, maxSpans)

	// Inverted span-count ranges are input errors.
	_, _, err = parseSpanRange("10", "5")
	require.Error(t, err)
	assert.True(t, isInputError(err))

	_, _, err = parseSpanRange("-1", "")
	assert.Error(t, err)
}
