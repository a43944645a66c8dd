package models

// The catalog tables are produced by the ingestion tooling and read here.
// Column names are camelCase to match the existing schema, so every field
// carries an explicit column tag.

// Video is a source video known to the catalog.
type Video struct {
	VideoID      string `gorm:"column:videoId;primaryKey" json:"videoId"`
	Title        string `gorm:"column:title" json:"title"`
	ChannelID    string `gorm:"column:channelId;index:idx_videos_channel" json:"channelId"`
	ChannelTitle string `gorm:"column:channelTitle" json:"channelTitle"`
	LangDefault  string `gorm:"column:langDefault" json:"langDefault,omitempty"`
	PublishedAt  string `gorm:"column:publishedAt" json:"publishedAt,omitempty"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// WordClip is one spoken occurrence of a single word.
type WordClip struct {
	Word     string  `gorm:"column:word;primaryKey;index:idx_word_clips_word" json:"word"`
	VideoID  string  `gorm:"column:videoId;primaryKey" json:"videoId"`
	Start    float64 `gorm:"column:start;primaryKey" json:"start"`
	Duration float64 `gorm:"column:duration" json:"duration"`
}

// TableName returns the table name for WordClip.
func (WordClip) TableName() string {
	return "word_clips"
}

// End returns the clip end timestamp in seconds.
func (c *WordClip) End() float64 {
	return c.Start + c.Duration
}

// VideoTranscript is the full word-level transcript of one video, stored as
// a JSON array of [word, start, end] triples.
type VideoTranscript struct {
	VideoID        string  `gorm:"column:videoId;primaryKey" json:"videoId"`
	TranscriptJSON string  `gorm:"column:transcriptJson" json:"-"`
	WordCount      int     `gorm:"column:wordCount" json:"wordCount"`
	Duration       float64 `gorm:"column:duration" json:"duration"`
}

// TableName returns the table name for VideoTranscript.
func (VideoTranscript) TableName() string {
	return "video_transcripts"
}

// PhraseIndexEntry is one spoken occurrence of a pre-indexed 2..5-word phrase,
// keyed by the MD5 of the normalized phrase text.
type PhraseIndexEntry struct {
	PhraseHash string  `gorm:"column:phraseHash;primaryKey;index:idx_phrase_index_hash" json:"phraseHash"`
	PhraseText string  `gorm:"column:phraseText" json:"phraseText"`
	VideoID    string  `gorm:"column:videoId;primaryKey" json:"videoId"`
	Start      float64 `gorm:"column:start;primaryKey" json:"start"`
	End        float64 `gorm:"column:end" json:"end"`
	WordCount  int     `gorm:"column:wordCount" json:"wordCount"`
}

// TableName returns the table name for PhraseIndexEntry.
func (PhraseIndexEntry) TableName() string {
	return "phrase_index"
}

// Duration returns the phrase duration in seconds.
func (p *PhraseIndexEntry) Duration() float64 {
	return p.End - p.Start
}
