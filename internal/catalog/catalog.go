package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/database"
	"github.com/clipstitch/clipstitch/internal/models"
)

// maxIndexedPhraseLen is the longest n-gram the phrase index stores. Longer
// phrases are only findable by scanning transcripts.
const maxIndexedPhraseLen = 5

// TranscriptWord is one spoken word with its timestamps in seconds.
type TranscriptWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the ordered word sequence of one video.
type Transcript []TranscriptWord

// ClipHit is a selected occurrence of a single word.
type ClipHit struct {
	Word     string  `json:"word"`
	VideoID  string  `json:"videoId"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the clip end timestamp in seconds.
func (h *ClipHit) End() float64 {
	return h.Start + h.Duration
}

// PhraseHit is a selected occurrence of a multi-word phrase.
type PhraseHit struct {
	Phrase    string  `json:"phrase"`
	VideoID   string  `json:"videoId"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	WordCount int     `json:"wordCount"`
}

// Duration returns the phrase duration in seconds.
func (h *PhraseHit) Duration() float64 {
	return h.End - h.Start
}

// LookupOptions tunes a single lookup.
type LookupOptions struct {
	// ExcludeVideos are video IDs to avoid for diversity. The exclusion is
	// waived when it would leave no candidates at all.
	ExcludeVideos []string
	// PreferredChannels overrides the catalog-level preferred channel list
	// for this lookup. Nil means use the configured list.
	PreferredChannels []string
}

// Stats summarizes the catalog contents.
type Stats struct {
	Words          int64 `json:"words"`
	Clips          int64 `json:"clips"`
	Videos         int64 `json:"videos"`
	Transcripts    int64 `json:"transcripts"`
	PhraseEntries  int64 `json:"phraseEntries"`
	HasTranscripts bool  `json:"hasTranscripts"`
	HasPhraseIndex bool  `json:"hasPhraseIndex"`
}

// Catalog reads the clip corpus. All methods are safe for concurrent use.
type Catalog struct {
	db        *database.DB
	logger    *slog.Logger
	preferred []string
	cache     *transcriptCache
}

// New creates a Catalog over the given database.
func New(db *database.DB, cfg config.CatalogConfig, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		db:        db,
		logger:    logger,
		preferred: cfg.PreferredChannels,
		cache:     newTranscriptCache(cfg.TranscriptCache),
	}
}

// candidate is a lookup result before selection.
type candidate struct {
	VideoID   string  `gorm:"column:videoId"`
	Start     float64 `gorm:"column:start"`
	End       float64 `gorm:"column:clip_end"`
	ChannelID string  `gorm:"column:channelId"`
}

func (c candidate) duration() float64 {
	return c.End - c.Start
}

// LookupWord finds the best clip for a single normalized word.
// Returns (nil, nil) when the word is not in the catalog.
func (c *Catalog) LookupWord(ctx context.Context, word string, opts LookupOptions) (*ClipHit, error) {
	tokens := NormalizeTokens(word)
	if len(tokens) != 1 {
		return nil, fmt.Errorf("lookup word %q: expected a single word", word)
	}
	w := tokens[0]

	var cands []candidate
	err := c.db.WithContext(ctx).
		Table("word_clips").
		Select("word_clips.videoId AS videoId, word_clips.start AS start, word_clips.start + word_clips.duration AS clip_end, videos.channelId AS channelId").
		Joins("LEFT JOIN videos ON videos.videoId = word_clips.videoId").
		Where("word_clips.word = ?", w).
		Scan(&cands).Error
	if err != nil {
		return nil, fmt.Errorf("querying word clips for %q: %w", w, err)
	}

	best := c.pick(cands, opts)
	if best == nil {
		return nil, nil
	}

	return &ClipHit{
		Word:     w,
		VideoID:  best.VideoID,
		Start:    best.Start,
		Duration: best.duration(),
	}, nil
}

// LookupPhrase finds the best occurrence of a multi-word phrase, first via
// the phrase index and then by scanning transcripts of videos that contain
// every word of the phrase. Returns (nil, nil) when no occurrence exists.
func (c *Catalog) LookupPhrase(ctx context.Context, phrase string, opts LookupOptions) (*PhraseHit, error) {
	tokens := NormalizeTokens(phrase)
	if len(tokens) < 2 {
		return nil, fmt.Errorf("lookup phrase %q: expected at least two words", phrase)
	}
	normalized := Normalize(phrase)

	// The index only holds 2..5-grams.
	if len(tokens) <= maxIndexedPhraseLen {
		hit, err := c.lookupIndexedPhrase(ctx, normalized, len(tokens), opts)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return hit, nil
		}
	}

	return c.scanTranscriptsForPhrase(ctx, normalized, tokens, opts)
}

func (c *Catalog) lookupIndexedPhrase(ctx context.Context, normalized string, wordCount int, opts LookupOptions) (*PhraseHit, error) {
	hash := PhraseHash(normalized)

	var cands []candidate
	err := c.db.WithContext(ctx).
		Table("phrase_index").
		Select(`phrase_index.videoId AS videoId, phrase_index.start AS start, phrase_index."end" AS clip_end, videos.channelId AS channelId`).
		Joins("LEFT JOIN videos ON videos.videoId = phrase_index.videoId").
		Where("phrase_index.phraseHash = ?", hash).
		Scan(&cands).Error
	if err != nil {
		return nil, fmt.Errorf("querying phrase index for %q: %w", normalized, err)
	}

	best := c.pick(cands, opts)
	if best == nil {
		return nil, nil
	}

	return &PhraseHit{
		Phrase:    normalized,
		VideoID:   best.VideoID,
		Start:     best.Start,
		End:       best.End,
		WordCount: wordCount,
	}, nil
}

// scanTranscriptsForPhrase locates the phrase by scanning transcripts of
// videos that contain every word of the phrase. Only the first occurrence
// per video competes in selection.
func (c *Catalog) scanTranscriptsForPhrase(ctx context.Context, normalized string, tokens []string, opts LookupOptions) (*PhraseHit, error) {
	videoIDs, err := c.videosContainingAll(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	channels, err := c.channelsFor(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	var cands []candidate
	for _, videoID := range videoIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		transcript, err := c.GetTranscript(ctx, videoID)
		if err != nil {
			return nil, err
		}
		if transcript == nil {
			continue
		}

		if start, end, ok := findPhraseInTranscript(transcript, tokens); ok {
			cands = append(cands, candidate{
				VideoID:   videoID,
				Start:     start,
				End:       end,
				ChannelID: channels[videoID],
			})
		}
	}

	best := c.pick(cands, opts)
	if best == nil {
		return nil, nil
	}

	return &PhraseHit{
		Phrase:    normalized,
		VideoID:   best.VideoID,
		Start:     best.Start,
		End:       best.End,
		WordCount: len(tokens),
	}, nil
}

// videosContainingAll returns the sorted IDs of videos whose word clips
// include every one of the given words.
func (c *Catalog) videosContainingAll(ctx context.Context, tokens []string) ([]string, error) {
	var result map[string]struct{}

	for _, token := range tokens {
		var ids []string
		err := c.db.WithContext(ctx).
			Model(&models.WordClip{}).
			Where("word = ?", token).
			Distinct().
			Pluck("videoId", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("querying videos for word %q: %w", token, err)
		}
		if len(ids) == 0 {
			return nil, nil
		}

		if result == nil {
			result = make(map[string]struct{}, len(ids))
			for _, id := range ids {
				result[id] = struct{}{}
			}
			continue
		}

		next := make(map[string]struct{}, len(result))
		for _, id := range ids {
			if _, ok := result[id]; ok {
				next[id] = struct{}{}
			}
		}
		result = next
		if len(result) == 0 {
			return nil, nil
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// channelsFor maps video IDs to channel IDs.
func (c *Catalog) channelsFor(ctx context.Context, videoIDs []string) (map[string]string, error) {
	var videos []models.Video
	err := c.db.WithContext(ctx).
		Where("videoId IN ?", videoIDs).
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("querying videos: %w", err)
	}

	channels := make(map[string]string, len(videos))
	for _, v := range videos {
		channels[v.VideoID] = v.ChannelID
	}
	return channels, nil
}

// findPhraseInTranscript returns the first contiguous occurrence of tokens.
func findPhraseInTranscript(transcript Transcript, tokens []string) (start, end float64, ok bool) {
	if len(tokens) == 0 || len(transcript) < len(tokens) {
		return 0, 0, false
	}

	normalized := make([]string, len(transcript))
	for i, w := range transcript {
		normalized[i] = Normalize(w.Word)
	}

	for i := 0; i+len(tokens) <= len(normalized); i++ {
		match := true
		for j, token := range tokens {
			if normalized[i+j] != token {
				match = false
				break
			}
		}
		if match {
			return transcript[i].Start, transcript[i+len(tokens)-1].End, true
		}
	}
	return 0, 0, false
}

// GetTranscript returns the parsed transcript for a video, or (nil, nil)
// when the video has none. Parsed transcripts are cached.
func (c *Catalog) GetTranscript(ctx context.Context, videoID string) (Transcript, error) {
	if cached, ok := c.cache.get(videoID); ok {
		return cached, nil
	}

	var rows []models.VideoTranscript
	err := c.db.WithContext(ctx).
		Where("videoId = ?", videoID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying transcript for %q: %w", videoID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	transcript, err := parseTranscript(rows[0].TranscriptJSON)
	if err != nil {
		return nil, fmt.Errorf("parsing transcript for %q: %w", videoID, err)
	}

	c.cache.put(videoID, transcript)
	return transcript, nil
}

// parseTranscript decodes the stored JSON array of [word, start, end] triples.
func parseTranscript(raw string) (Transcript, error) {
	var entries [][]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	transcript := make(Transcript, 0, len(entries))
	for i, entry := range entries {
		if len(entry) != 3 {
			return nil, fmt.Errorf("entry %d: expected [word, start, end], got %d elements", i, len(entry))
		}
		var w TranscriptWord
		if err := json.Unmarshal(entry[0], &w.Word); err != nil {
			return nil, fmt.Errorf("entry %d word: %w", i, err)
		}
		if err := json.Unmarshal(entry[1], &w.Start); err != nil {
			return nil, fmt.Errorf("entry %d start: %w", i, err)
		}
		if err := json.Unmarshal(entry[2], &w.End); err != nil {
			return nil, fmt.Errorf("entry %d end: %w", i, err)
		}
		transcript = append(transcript, w)
	}
	return transcript, nil
}

// Stats returns catalog content counts.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	db := c.db.WithContext(ctx)
	var s Stats

	if err := db.Model(&models.WordClip{}).Distinct("word").Count(&s.Words).Error; err != nil {
		return nil, fmt.Errorf("counting words: %w", err)
	}
	if err := db.Model(&models.WordClip{}).Count(&s.Clips).Error; err != nil {
		return nil, fmt.Errorf("counting clips: %w", err)
	}
	if err := db.Model(&models.Video{}).Count(&s.Videos).Error; err != nil {
		return nil, fmt.Errorf("counting videos: %w", err)
	}
	if err := db.Model(&models.VideoTranscript{}).Count(&s.Transcripts).Error; err != nil {
		return nil, fmt.Errorf("counting transcripts: %w", err)
	}
	if err := db.Model(&models.PhraseIndexEntry{}).Count(&s.PhraseEntries).Error; err != nil {
		return nil, fmt.Errorf("counting phrase index: %w", err)
	}

	s.HasTranscripts = s.Transcripts > 0
	s.HasPhraseIndex = s.PhraseEntries > 0
	return &s, nil
}

// pick applies the selection policy: preferred channels narrow the field
// when they match anything, exclusions narrow it unless they would empty
// it, then the longest clip wins with (videoId, start) as the tiebreak.
func (c *Catalog) pick(cands []candidate, opts LookupOptions) *candidate {
	if len(cands) == 0 {
		return nil
	}

	preferred := opts.PreferredChannels
	if preferred == nil {
		preferred = c.preferred
	}
	if len(preferred) > 0 {
		prefSet := make(map[string]struct{}, len(preferred))
		for _, ch := range preferred {
			prefSet[ch] = struct{}{}
		}
		var narrowed []candidate
		for _, cand := range cands {
			if _, ok := prefSet[cand.ChannelID]; ok {
				narrowed = append(narrowed, cand)
			}
		}
		if len(narrowed) > 0 {
			cands = narrowed
		}
	}

	if len(opts.ExcludeVideos) > 0 {
		excluded := make(map[string]struct{}, len(opts.ExcludeVideos))
		for _, id := range opts.ExcludeVideos {
			excluded[id] = struct{}{}
		}
		var narrowed []candidate
		for _, cand := range cands {
			if _, ok := excluded[cand.VideoID]; !ok {
				narrowed = append(narrowed, cand)
			}
		}
		// Waived when every candidate is excluded: repetition beats silence.
		if len(narrowed) > 0 {
			cands = narrowed
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		di, dj := cands[i].duration(), cands[j].duration()
		if di != dj {
			return di > dj
		}
		if cands[i].VideoID != cands[j].VideoID {
			return cands[i].VideoID < cands[j].VideoID
		}
		return cands[i].Start < cands[j].Start
	})

	return &cands[0]
}
