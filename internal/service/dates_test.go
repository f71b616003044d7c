package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2023-05-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2023-05-10T14:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, d.Day())

	for _, raw := range []string{"", "10/05/2023", "2023-13-01", "yesterday"} {
		_, err := ParseDate(raw)
		var parseErr *DateParseError
		assert.True(t, errors.As(err, &parseErr), raw)
	}
}

func TestAgeInYears(t *testing.T) {
	birth := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, AgeInYears(birth, time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 29, AgeInYears(time.Date(1990, 6, 16, 0, 0, 0, 0, time.UTC), time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30, AgeInYears(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)))
}
