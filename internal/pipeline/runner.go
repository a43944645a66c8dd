// Package pipeline orchestrates a composition job: plan, fetch, transcode,
// concatenate, enhance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clipstitch/clipstitch/internal/catalog"
	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/enhance"
	"github.com/clipstitch/clipstitch/internal/fetch"
	"github.com/clipstitch/clipstitch/internal/ffmpeg"
	"github.com/clipstitch/clipstitch/internal/models"
	"github.com/clipstitch/clipstitch/internal/observability"
	"github.com/clipstitch/clipstitch/internal/planner"
	"github.com/clipstitch/clipstitch/internal/transcode"
)

// Errors surfaced to the API layer.
var (
	ErrBadRequest   = errors.New("sentence contains no usable words")
	ErrMissingWords = errors.New("no clips found for some words")
)

// Default worker pool sizes.
const (
	DefaultDownloadWorkers   = 3
	DefaultProcessingWorkers = 4
)

// Status summarizes how a job ended.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Request describes one composition job. Zero or nil override fields
// fall back to the configured defaults.
type Request struct {
	Sentence string
	// IntroText and OutroText render title cards around the sequence.
	IntroText string
	OutroText string
	// Subtitles overlays each segment with its spoken text.
	Subtitles bool
	// Watermark text overlaid on every clip; empty disables.
	Watermark string
	// AspectRatio overrides the configured output aspect ratio.
	AspectRatio string

	PreferredChannels []string
	MaxPhraseLen      int

	// PaddingStart and PaddingEnd override the download padding.
	PaddingStart *float64
	PaddingEnd   *float64

	// DownloadWorkers and ProcessingWorkers override the pool sizes.
	DownloadWorkers   int
	ProcessingWorkers int

	// Enhance requests the audio cleanup round-trip; KeepOriginalAudio
	// overrides the configured original-retention setting.
	Enhance           bool
	KeepOriginalAudio *bool

	// Progress is called after each segment completes; may be nil.
	Progress func(completed, total int)
}

// WordTiming locates one pick's text within the output video.
type WordTiming struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Source is the catalog video the segment came from; empty for cards.
	Source string `json:"source,omitempty"`
}

// Result describes a finished job.
type Result struct {
	JobID        string       `json:"jobId"`
	Status       Status       `json:"status"`
	OutputPath   string       `json:"outputPath"`
	OriginalPath string       `json:"originalPath,omitempty"`
	Duration     float64      `json:"duration"`
	Timings      []WordTiming `json:"timings"`
	MissingWords []string     `json:"missingWords,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// Planner plans clip sequences.
type Planner interface {
	Plan(ctx context.Context, tokens []string, opts planner.Options) ([]planner.Pick, error)
}

// Fetcher downloads clip segments.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (string, error)
}

// Transcoder renders segments and cards.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string, opts transcode.Options) error
	RenderCard(ctx context.Context, text string, duration time.Duration, output string, opts transcode.Options) error
	CardDuration() time.Duration
	TitleDuration() time.Duration
}

// Concatenator joins rendered segments.
type Concatenator interface {
	Concatenate(ctx context.Context, files []string, output string) (float64, error)
}

// Enhancer runs the audio cleanup round-trip.
type Enhancer interface {
	Enabled() bool
	Enhance(ctx context.Context, videoPath, workDir string, opts enhance.Options) error
}

// SegmentProber reports the duration of a rendered intermediate.
type SegmentProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobeDurations adapts the ffprobe prober to SegmentProber.
type FFprobeDurations struct {
	Prober *ffmpeg.Prober
}

func (f FFprobeDurations) Duration(ctx context.Context, path string) (float64, error) {
	result, err := f.Prober.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration(), nil
}

// ConcatFunc adapts a concatenator returning a rich result.
type ConcatFunc func(ctx context.Context, files []string, output string) (float64, error)

func (f ConcatFunc) Concatenate(ctx context.Context, files []string, output string) (float64, error) {
	return f(ctx, files, output)
}

// Runner executes composition jobs.
type Runner struct {
	planner  Planner
	fetcher  Fetcher
	trans    Transcoder
	concat   Concatenator
	enhancer Enhancer
	prober   SegmentProber

	cfg       config.PipelineConfig
	outputDir string
	tempDir   string
	logger    *slog.Logger

	// DefaultMaxPhraseLen is used when a request does not set MaxPhraseLen.
	// Zero falls through to the planner's own default.
	DefaultMaxPhraseLen int
}

// New creates a Runner.
func New(
	pl Planner,
	f Fetcher,
	tr Transcoder,
	cc Concatenator,
	en Enhancer,
	pr SegmentProber,
	cfg config.PipelineConfig,
	outputDir, tempDir string,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		planner:   pl,
		fetcher:   f,
		trans:     tr,
		concat:    cc,
		enhancer:  en,
		prober:    pr,
		cfg:       cfg,
		outputDir: outputDir,
		tempDir:   tempDir,
		logger:    logger.With(slog.String("component", "pipeline")),
	}
}

// segment is one intermediate moving through the pools.
type segment struct {
	idx         int
	pick        planner.Pick
	src         string // fetched source file, empty for cards
	substituted bool   // clip replaced by a card after a fetch failure
	skipped     bool   // render failed; pick dropped from the output
	err         error
}

// rendered is a finished intermediate.
type rendered struct {
	idx         int
	pick        planner.Pick
	path        string
	duration    float64
	substituted bool
	skipped     bool
}

// Run executes one job. The scratch directory is removed on every exit
// path unless KeepTemp is set; the output file lives in the output dir.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	tokens := catalog.NormalizeTokens(req.Sentence)
	if len(tokens) == 0 {
		return nil, ErrBadRequest
	}

	jobID := models.NewULID()
	log := observability.WithJobID(r.logger, jobID.String())

	scratch := filepath.Join(r.tempDir, "job-"+jobID.String())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if r.cfg.KeepTemp {
			log.Debug("keeping scratch dir", slog.String("dir", scratch))
			return
		}
		os.RemoveAll(scratch)
	}()

	log.Info("job started",
		slog.Int("tokens", len(tokens)),
		slog.Bool("enhance", req.Enhance),
	)

	maxPhraseLen := req.MaxPhraseLen
	if maxPhraseLen == 0 {
		maxPhraseLen = r.DefaultMaxPhraseLen
	}
	picks, err := r.planner.Plan(ctx, tokens, planner.Options{
		MaxPhraseLen:      maxPhraseLen,
		PreferredChannels: req.PreferredChannels,
	})
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	missing := planner.MissingWords(picks)
	if r.cfg.FailOnMissing && len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingWords, strings.Join(missing, ", "))
	}

	ordered, warnings, skipped, err := r.renderSegments(ctx, req, picks, scratch, log)
	if err != nil {
		return nil, err
	}

	files, introDur, err := r.wrapWithTitleCards(ctx, req, ordered, scratch)
	if err != nil {
		return nil, err
	}

	outputPath := filepath.Join(r.outputDir, jobID.String()+".mp4")
	totalDur, err := r.concat.Concatenate(ctx, files, outputPath)
	if err != nil {
		return nil, fmt.Errorf("concatenating: %w", err)
	}

	result := &Result{
		JobID:        jobID.String(),
		OutputPath:   outputPath,
		Duration:     totalDur,
		Timings:      buildTimings(ordered, introDur),
		MissingWords: missing,
		Warnings:     warnings,
	}

	if req.Enhance && r.enhancer != nil && r.enhancer.Enabled() {
		opts := enhance.Options{KeepOriginal: req.KeepOriginalAudio}
		if err := r.enhancer.Enhance(ctx, outputPath, scratch, opts); err != nil {
			log.Warn("audio enhancement failed, keeping original", slog.String("error", err.Error()))
			result.Warnings = append(result.Warnings, "audio enhancement failed: "+err.Error())
		} else {
			ext := filepath.Ext(outputPath)
			original := strings.TrimSuffix(outputPath, ext) + "_original" + ext
			if _, statErr := os.Stat(original); statErr == nil {
				result.OriginalPath = original
			}
		}
	}

	for _, seg := range ordered {
		if seg.substituted {
			result.MissingWords = append(result.MissingWords, seg.pick.Text)
		}
	}
	result.MissingWords = append(result.MissingWords, skipped...)

	// Partial means picks were skipped or placeholder-substituted; a
	// failed enhancement alone stays a success with a warning.
	if len(result.MissingWords) > 0 {
		result.Status = StatusPartial
	} else {
		result.Status = StatusSuccess
	}

	log.Info("job finished",
		slog.String("status", string(result.Status)),
		slog.Float64("duration", result.Duration),
		slog.Int("missing", len(result.MissingWords)),
	)
	return result, nil
}

// renderSegments runs the fetch and transcode pools and returns the
// intermediates in plan order, plus the texts of picks whose render
// failed and was skipped.
func (r *Runner) renderSegments(ctx context.Context, req Request, picks []planner.Pick, scratch string, log *slog.Logger) ([]rendered, []string, []string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskCh := make(chan segment)
	procCh := make(chan segment)
	doneCh := make(chan segment)

	go func() {
		defer close(taskCh)
		for i, pick := range picks {
			select {
			case taskCh <- segment{idx: i, pick: pick}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var fetchWG sync.WaitGroup
	for w := 0; w < r.downloadWorkers(req); w++ {
		fetchWG.Add(1)
		go func() {
			defer fetchWG.Done()
			for seg := range taskCh {
				r.fetchSegment(ctx, req, &seg, log)
				select {
				case procCh <- seg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		fetchWG.Wait()
		close(procCh)
	}()

	var procWG sync.WaitGroup
	for w := 0; w < r.processingWorkers(req); w++ {
		procWG.Add(1)
		go func() {
			defer procWG.Done()
			for seg := range procCh {
				if seg.err == nil {
					r.renderSegment(ctx, req, &seg, scratch, log)
				}
				select {
				case doneCh <- seg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		procWG.Wait()
		close(doneCh)
	}()

	buffer := newReorder[rendered]()
	ordered := make([]rendered, 0, len(picks))
	var warnings []string
	var skipped []string
	var fatal error
	completed := 0

	for seg := range doneCh {
		completed++
		if seg.err != nil {
			if fatal == nil {
				fatal = seg.err
				cancel()
			}
			continue
		}
		if seg.substituted {
			warnings = append(warnings, fmt.Sprintf("no usable clip for %q, rendered placeholder", seg.pick.Text))
		}

		item := rendered{
			idx:         seg.idx,
			pick:        seg.pick,
			path:        seg.src,
			substituted: seg.substituted,
			skipped:     seg.skipped,
		}
		if !seg.skipped {
			dur, err := r.prober.Duration(ctx, seg.src)
			if err != nil && fatal == nil {
				fatal = fmt.Errorf("probing segment: %w", err)
				cancel()
				continue
			}
			item.duration = dur
		}

		// Skipped items still pass through the reorder buffer so later
		// indexes are not held back waiting on a gap.
		for _, ready := range buffer.add(seg.idx, item) {
			if ready.skipped {
				warnings = append(warnings, fmt.Sprintf("rendering failed for %q, skipped", ready.pick.Text))
				skipped = append(skipped, ready.pick.Text)
				continue
			}
			ordered = append(ordered, ready)
		}

		if req.Progress != nil {
			req.Progress(completed, len(picks))
		}
	}

	if fatal != nil {
		return nil, nil, nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	if len(ordered)+len(skipped) != len(picks) {
		return nil, nil, nil, fmt.Errorf("rendered %d of %d segments", len(ordered), len(picks))
	}
	if len(ordered) == 0 {
		return nil, nil, nil, fmt.Errorf("rendering failed for all %d segments", len(picks))
	}
	return ordered, warnings, skipped, nil
}

// fetchSegment downloads a clip pick, downgrading failures to placeholder
// substitution unless the job is configured to fail.
func (r *Runner) fetchSegment(ctx context.Context, req Request, seg *segment, log *slog.Logger) {
	if seg.pick.Kind == planner.PickPlaceholder {
		return
	}

	src, err := r.fetcher.Fetch(ctx, fetch.Request{
		VideoID:      seg.pick.VideoID,
		Start:        seg.pick.Start,
		End:          seg.pick.End,
		PaddingStart: req.PaddingStart,
		PaddingEnd:   req.PaddingEnd,
	})
	if err == nil {
		seg.src = src
		return
	}
	if ctx.Err() != nil {
		seg.err = ctx.Err()
		return
	}
	if r.cfg.FailOnMissing {
		seg.err = fmt.Errorf("fetching %s: %w", seg.pick.VideoID, err)
		return
	}

	log.Warn("segment download failed, substituting placeholder",
		slog.String("video_id", seg.pick.VideoID),
		slog.String("text", seg.pick.Text),
		slog.String("error", err.Error()),
	)
	seg.pick.Kind = planner.PickPlaceholder
	seg.pick.VideoID = ""
	seg.substituted = true
}

// renderSegment transcodes a clip or renders a placeholder card, writing
// the result path back into seg.src. A render failure drops the pick
// unless the job is configured to fail.
func (r *Runner) renderSegment(ctx context.Context, req Request, seg *segment, scratch string, log *slog.Logger) {
	out := filepath.Join(scratch, fmt.Sprintf("seg-%04d.mp4", seg.idx))

	opts := transcode.Options{Watermark: req.Watermark, AspectRatio: req.AspectRatio}
	if req.Subtitles {
		opts.Subtitle = seg.pick.Text
	}

	var err error
	if seg.pick.Kind == planner.PickPlaceholder {
		cardOpts := transcode.Options{AspectRatio: req.AspectRatio}
		err = r.trans.RenderCard(ctx, seg.pick.Text, r.trans.CardDuration(), out, cardOpts)
	} else {
		err = r.trans.Transcode(ctx, seg.src, out, opts)
	}
	if err == nil {
		seg.src = out
		return
	}

	if ctx.Err() != nil {
		seg.err = ctx.Err()
		return
	}
	if r.cfg.FailOnMissing {
		seg.err = fmt.Errorf("rendering segment %d (%q): %w", seg.idx, seg.pick.Text, err)
		return
	}

	log.Warn("segment render failed, skipping",
		slog.String("text", seg.pick.Text),
		slog.String("error", err.Error()),
	)
	seg.skipped = true
}

// wrapWithTitleCards surrounds the sequence with intro and outro cards
// when requested, returning the concat input list and intro duration.
func (r *Runner) wrapWithTitleCards(ctx context.Context, req Request, ordered []rendered, scratch string) ([]string, float64, error) {
	files := make([]string, 0, len(ordered)+2)
	cardOpts := transcode.Options{AspectRatio: req.AspectRatio}
	var introDur float64

	if req.IntroText != "" {
		intro := filepath.Join(scratch, "intro.mp4")
		if err := r.trans.RenderCard(ctx, req.IntroText, r.trans.TitleDuration(), intro, cardOpts); err != nil {
			return nil, 0, fmt.Errorf("rendering intro card: %w", err)
		}
		dur, err := r.prober.Duration(ctx, intro)
		if err != nil {
			return nil, 0, fmt.Errorf("probing intro card: %w", err)
		}
		introDur = dur
		files = append(files, intro)
	}

	for _, seg := range ordered {
		files = append(files, seg.path)
	}

	if req.OutroText != "" {
		outro := filepath.Join(scratch, "outro.mp4")
		if err := r.trans.RenderCard(ctx, req.OutroText, r.trans.TitleDuration(), outro, cardOpts); err != nil {
			return nil, 0, fmt.Errorf("rendering outro card: %w", err)
		}
		files = append(files, outro)
	}

	return files, introDur, nil
}

// buildTimings lays word timings end to end from the intro offset.
func buildTimings(ordered []rendered, offset float64) []WordTiming {
	timings := make([]WordTiming, 0, len(ordered))
	pos := offset
	for _, seg := range ordered {
		timings = append(timings, WordTiming{
			Text:   seg.pick.Text,
			Start:  pos,
			End:    pos + seg.duration,
			Source: seg.pick.VideoID,
		})
		pos += seg.duration
	}
	return timings
}

func (r *Runner) downloadWorkers(req Request) int {
	if req.DownloadWorkers > 0 {
		return req.DownloadWorkers
	}
	if r.cfg.DownloadWorkers > 0 {
		return r.cfg.DownloadWorkers
	}
	return DefaultDownloadWorkers
}

func (r *Runner) processingWorkers(req Request) int {
	if req.ProcessingWorkers > 0 {
		return req.ProcessingWorkers
	}
	if r.cfg.ProcessingWorkers > 0 {
		return r.cfg.ProcessingWorkers
	}
	return DefaultProcessingWorkers
}
