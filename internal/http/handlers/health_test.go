package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstitch/clipstitch/internal/catalog"
)

type fakeStats struct {
	stats *catalog.Stats
	err   error
}

func (f *fakeStats) Stats(_ context.Context) (*catalog.Stats, error) {
	return f.stats, f.err
}

func TestHealth_NoDatabase(t *testing.T) {
	h := NewHealthHandler("1.2.3")

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.True(t, out.Body.OK)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.Equal(t, "unknown", out.Body.Database.Status)
	assert.NotZero(t, out.Body.CPU.Cores)
	assert.NotEmpty(t, out.Body.Timestamp)
	assert.Nil(t, out.Body.Catalog)
}

func TestHealth_CatalogStats(t *testing.T) {
	h := NewHealthHandler("dev").WithStats(&fakeStats{stats: &catalog.Stats{
		Words:  100,
		Clips:  250,
		Videos: 10,
	}})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	require.NotNil(t, out.Body.Catalog)
	assert.Equal(t, int64(100), out.Body.Catalog.Words)
}

func TestHealth_StatsErrorOmitsCatalog(t *testing.T) {
	h := NewHealthHandler("dev").WithStats(&fakeStats{err: errors.New("locked")})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Nil(t, out.Body.Catalog)
	assert.True(t, out.Body.OK)
}
