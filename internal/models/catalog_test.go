package models

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordClip_End(t *testing.T) {
	clip := &WordClip{Word: "hello", VideoID: "vid1", Start: 12.5, Duration: 0.4}
	assert.InDelta(t, 12.9, clip.End(), 1e-9)
}

func TestPhraseIndexEntry_Duration(t *testing.T) {
	entry := &PhraseIndexEntry{VideoID: "vid1", Start: 3.0, End: 4.25}
	assert.InDelta(t, 1.25, entry.Duration(), 1e-9)
}

// columnNames extracts the gorm column tag of every field.
func columnNames(t *testing.T, model any) []string {
	t.Helper()
	typ := reflect.TypeOf(model)
	cols := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		for _, part := range strings.Split(typ.Field(i).Tag.Get("gorm"), ";") {
			if name, ok := strings.CutPrefix(part, "column:"); ok {
				cols = append(cols, name)
			}
		}
	}
	return cols
}

func TestVideoColumns(t *testing.T) {
	// The ingestion tooling owns this schema; the names must not drift.
	assert.Equal(t,
		[]string{"videoId", "title", "channelId", "channelTitle", "langDefault", "publishedAt"},
		columnNames(t, Video{}))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "videos", Video{}.TableName())
	assert.Equal(t, "word_clips", WordClip{}.TableName())
	assert.Equal(t, "video_transcripts", VideoTranscript{}.TableName())
	assert.Equal(t, "phrase_index", PhraseIndexEntry{}.TableName())
}
