package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_TextRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1w2d12h")))
	assert.Equal(t, 9*24*time.Hour+12*time.Hour, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1w2d12h", string(text))
}

func TestDuration_UnmarshalText_Invalid(t *testing.T) {
	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("soon")))
	assert.Error(t, d.UnmarshalText(nil))
}

func TestDuration_JSON(t *testing.T) {
	type payload struct {
		Retention Duration `json:"retention"`
	}

	// Durations arrive either as extended strings or raw nanoseconds.
	var fromString payload
	require.NoError(t, json.Unmarshal([]byte(`{"retention":"30d"}`), &fromString))
	assert.Equal(t, 30*24*time.Hour, fromString.Retention.Duration())

	var fromInt payload
	require.NoError(t, json.Unmarshal([]byte(`{"retention":3600000000000}`), &fromInt))
	assert.Equal(t, time.Hour, fromInt.Retention.Duration())

	out, err := json.Marshal(payload{Retention: Duration(36 * time.Hour)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"retention":"1d12h"}`, string(out))
}

func TestDuration_String(t *testing.T) {
	assert.Equal(t, "2w", Duration(14*24*time.Hour).String())
	assert.Equal(t, "1w2d", Duration(9*24*time.Hour).String())
	assert.Equal(t, "12h", Duration(12*time.Hour).String())
	assert.Equal(t, "0s", Duration(0).String())
}

func TestParseDuration_Wrapper(t *testing.T) {
	d, err := ParseDuration("2d6h")
	require.NoError(t, err)
	assert.Equal(t, 54*time.Hour, d.Duration())

	_, err = ParseDuration("")
	assert.Error(t, err)
}
