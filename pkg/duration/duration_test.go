package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"720h", 720 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"45s", 45 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"30d", 30 * Day, false},
		{"1d12h", 36 * time.Hour, false},
		{"2w", 14 * Day, false},
		{"1w2d", 9 * Day, false},
		{"1w2d12h", 9*Day + 12*time.Hour, false},
		{"1w2d3h4m5s", 9*Day + 3*time.Hour + 4*time.Minute + 5*time.Second, false},
		{"-2d", -2 * Day, false},
		{"0s", 0, false},
		{"", 0, true},
		{"invalid", 0, true},
		{"1ds", 0, true},
		{"d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "0s"},
		{12 * time.Hour, "12h"},
		{90 * time.Minute, "1h30m"},
		{3 * Day, "3d"},
		{9 * Day, "1w2d"},
		{9*Day + 12*time.Hour, "1w2d12h"},
		{14 * Day, "2w"},
		{-2 * Day, "-2d"},
		{250 * time.Millisecond, "250ms"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"2w", "1w2d", "3d", "1h30m", "45s"} {
		d, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(d))
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 2*Week, MustParse("2w"))
	assert.Panics(t, func() { MustParse("nope") })
}
