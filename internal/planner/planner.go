// Package planner turns a token sequence into an ordered list of clip picks
// using greedy longest-phrase matching against the catalog.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clipstitch/clipstitch/internal/catalog"
)

// DefaultMaxPhraseLen bounds phrase probing when the caller does not.
const DefaultMaxPhraseLen = 10

// maxPhraseLenCap is the hard upper bound for phrase probing.
const maxPhraseLenCap = 50

// Lookup is the catalog surface the planner needs.
type Lookup interface {
	LookupWord(ctx context.Context, word string, opts catalog.LookupOptions) (*catalog.ClipHit, error)
	LookupPhrase(ctx context.Context, phrase string, opts catalog.LookupOptions) (*catalog.PhraseHit, error)
}

// PickKind describes how a pick will be rendered.
type PickKind string

const (
	// PickPhrase is a multi-word catalog hit.
	PickPhrase PickKind = "phrase"
	// PickWord is a single-word catalog hit.
	PickWord PickKind = "word"
	// PickPlaceholder is a token with no catalog hit; it renders as a card.
	PickPlaceholder PickKind = "placeholder"
)

// Pick is one planned segment of the output video.
type Pick struct {
	Kind PickKind `json:"kind"`
	// Text is the normalized text this pick covers.
	Text string `json:"text"`
	// WordStart and WordEnd delimit the covered token span [start, end).
	WordStart int `json:"wordStart"`
	WordEnd   int `json:"wordEnd"`
	// Source segment; zero values for placeholders.
	VideoID string  `json:"videoId,omitempty"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// Duration returns the source segment duration, zero for placeholders.
func (p *Pick) Duration() float64 {
	return p.End - p.Start
}

// WordCount returns the number of tokens the pick covers.
func (p *Pick) WordCount() int {
	return p.WordEnd - p.WordStart
}

// Options tunes a planning run.
type Options struct {
	// MaxPhraseLen caps phrase probing; 0 means DefaultMaxPhraseLen.
	// Values are clamped to [1, 50]. 1 disables phrase lookups.
	MaxPhraseLen int
	// PreferredChannels is passed through to every lookup.
	PreferredChannels []string
}

// Planner plans clip sequences.
type Planner struct {
	lookup Lookup
	logger *slog.Logger
}

// New creates a Planner.
func New(lookup Lookup, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{lookup: lookup, logger: logger}
}

// Plan covers tokens with picks. The result partitions [0, len(tokens))
// exactly: every token lands in exactly one pick, in order. Videos already
// used by earlier picks are passed as exclusions so consecutive picks favor
// different sources; exclusion never causes a token to go unmatched.
func (p *Planner) Plan(ctx context.Context, tokens []string, opts Options) ([]Pick, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("plan: no tokens")
	}

	maxLen := opts.MaxPhraseLen
	if maxLen == 0 {
		maxLen = DefaultMaxPhraseLen
	}
	if maxLen < 1 {
		maxLen = 1
	}
	if maxLen > maxPhraseLenCap {
		maxLen = maxPhraseLenCap
	}

	picks := make([]Pick, 0, len(tokens))
	var usedVideos []string

	for i := 0; i < len(tokens); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lookupOpts := catalog.LookupOptions{
			ExcludeVideos:     usedVideos,
			PreferredChannels: opts.PreferredChannels,
		}

		pick, err := p.longestPhraseAt(ctx, tokens, i, maxLen, lookupOpts)
		if err != nil {
			return nil, err
		}
		if pick != nil {
			picks = append(picks, *pick)
			usedVideos = append(usedVideos, pick.VideoID)
			i = pick.WordEnd
			continue
		}

		hit, err := p.lookup.LookupWord(ctx, tokens[i], lookupOpts)
		if err != nil {
			return nil, fmt.Errorf("looking up word %q: %w", tokens[i], err)
		}
		if hit != nil {
			picks = append(picks, Pick{
				Kind:      PickWord,
				Text:      hit.Word,
				WordStart: i,
				WordEnd:   i + 1,
				VideoID:   hit.VideoID,
				Start:     hit.Start,
				End:       hit.End(),
			})
			usedVideos = append(usedVideos, hit.VideoID)
			i++
			continue
		}

		p.logger.Debug("no clip for token, planning placeholder",
			slog.String("token", tokens[i]),
			slog.Int("position", i),
		)
		picks = append(picks, Pick{
			Kind:      PickPlaceholder,
			Text:      tokens[i],
			WordStart: i,
			WordEnd:   i + 1,
		})
		i++
	}

	return picks, nil
}

// longestPhraseAt probes phrases starting at position i from the longest
// allowed length down to two words, returning the first hit.
func (p *Planner) longestPhraseAt(ctx context.Context, tokens []string, i, maxLen int, opts catalog.LookupOptions) (*Pick, error) {
	maxK := maxLen
	if remaining := len(tokens) - i; remaining < maxK {
		maxK = remaining
	}

	for k := maxK; k >= 2; k-- {
		phrase := strings.Join(tokens[i:i+k], " ")
		hit, err := p.lookup.LookupPhrase(ctx, phrase, opts)
		if err != nil {
			return nil, fmt.Errorf("looking up phrase %q: %w", phrase, err)
		}
		if hit == nil {
			continue
		}
		return &Pick{
			Kind:      PickPhrase,
			Text:      hit.Phrase,
			WordStart: i,
			WordEnd:   i + k,
			VideoID:   hit.VideoID,
			Start:     hit.Start,
			End:       hit.End,
		}, nil
	}
	return nil, nil
}

// MissingWords lists the placeholder texts of a plan in order.
func MissingWords(picks []Pick) []string {
	var missing []string
	for _, pick := range picks {
		if pick.Kind == PickPlaceholder {
			missing = append(missing, pick.Text)
		}
	}
	return missing
}
