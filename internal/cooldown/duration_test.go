package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationAccepts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1h30m", 90 * time.Minute},
		{"1H30M", 90 * time.Minute},
		{"2d", 48 * time.Hour},
		{"1d 2h 3m 4s", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"45", 45 * time.Second},
		{"1m30", 90 * time.Second},
		{"30s1m", 90 * time.Second},
		{"0s", 0},
		{"  7m  ", 7 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDurationRejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"",
		"   ",
		"xyz",
		"h",
		"1x",
		"1h1h",
		"1s30",
		"30 1h",
		"1 h",
		"-1h",
		"1.5h",
		"99999999999999999999s",
		"9999999999999d",
	} {
		_, err := ParseDuration(in)
		assert.ErrorIs(t, err, ErrInvalidDuration, "%q", in)
	}
}
