package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDaysAndRangeConflict(t *testing.T) {
	req := &FetchRequest{Days: 7, StartDate: day("2024-01-01")}

	_, _, err := req.normalize(time.Now())
	assert.ErrorIs(t, err, ErrConflictingRange)
}

func TestNormalizeTrailingDays(t *testing.T) {
	now := day("2024-06-15")
	req := &FetchRequest{Days: 7}

	start, end, err := req.normalize(now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -7), start)
}

func TestNormalizeExplicitRange(t *testing.T) {
	req := &FetchRequest{StartDate: day("2024-01-01"), EndDate: day("2024-01-31")}

	start, end, err := req.normalize(time.Now())
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-01"), start)
	assert.Equal(t, day("2024-01-31"), end)
}

func TestNormalizeSwapsReversedRange(t *testing.T) {
	req := &FetchRequest{StartDate: day("2024-01-31"), EndDate: day("2024-01-01")}

	start, end, err := req.normalize(time.Now())
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-01"), start)
	assert.Equal(t, day("2024-01-31"), end)
}

func TestNormalizeSingleSidedRange(t *testing.T) {
	req := &FetchRequest{StartDate: day("2024-01-05")}

	start, end, err := req.normalize(time.Now())
	require.NoError(t, err)
	assert.Equal(t, start, end)
	assert.Equal(t, day("2024-01-05"), start)
}

func TestNormalizeDefaultRange(t *testing.T) {
	now := day("2024-06-15")
	req := &FetchRequest{}

	start, end, err := req.normalize(now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -defaultRangeDays), start)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, day("2024-03-09"), got)

	_, err = ParseDate("03/09/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseDate("2024-13-40")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
