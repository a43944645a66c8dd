package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/enhance"
	"github.com/clipstitch/clipstitch/internal/fetch"
	"github.com/clipstitch/clipstitch/internal/planner"
	"github.com/clipstitch/clipstitch/internal/transcode"
)

type fakePlanner struct {
	picks []planner.Pick
	err   error

	mu   sync.Mutex
	opts []planner.Options
}

func (p *fakePlanner) Plan(_ context.Context, _ []string, opts planner.Options) ([]planner.Pick, error) {
	p.mu.Lock()
	p.opts = append(p.opts, opts)
	p.mu.Unlock()
	return p.picks, p.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	dir   string
	fails map[string]error // keyed by video ID
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.VideoID)
	f.mu.Unlock()

	if err := f.fails[req.VideoID]; err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, req.VideoID+".mp4")
	if err := os.WriteFile(path, []byte("raw:"+req.VideoID), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeTranscoder struct {
	mu       sync.Mutex
	cards    []string
	subs     []string
	failText string
}

func (tr *fakeTranscoder) Transcode(_ context.Context, input, output string, opts transcode.Options) error {
	tr.mu.Lock()
	if opts.Subtitle != "" {
		tr.subs = append(tr.subs, opts.Subtitle)
	}
	tr.mu.Unlock()
	if tr.failText != "" && opts.Subtitle == tr.failText {
		return errors.New("encode blew up")
	}
	return os.WriteFile(output, []byte("clip:"+filepath.Base(input)), 0o644)
}

func (tr *fakeTranscoder) RenderCard(_ context.Context, text string, _ time.Duration, output string, _ transcode.Options) error {
	tr.mu.Lock()
	tr.cards = append(tr.cards, text)
	tr.mu.Unlock()
	return os.WriteFile(output, []byte("card:"+text), 0o644)
}

func (tr *fakeTranscoder) CardDuration() time.Duration  { return time.Second }
func (tr *fakeTranscoder) TitleDuration() time.Duration { return 2 * time.Second }

type fakeProber struct{ dur float64 }

func (p fakeProber) Duration(_ context.Context, _ string) (float64, error) {
	return p.dur, nil
}

type fakeEnhancer struct {
	enabled bool
	err     error
	keep    bool
	called  bool
}

func (e *fakeEnhancer) Enabled() bool { return e.enabled }

func (e *fakeEnhancer) Enhance(_ context.Context, videoPath, _ string, opts enhance.Options) error {
	e.called = true
	if e.err != nil {
		return e.err
	}
	keep := e.keep
	if opts.KeepOriginal != nil {
		keep = *opts.KeepOriginal
	}
	if keep {
		ext := filepath.Ext(videoPath)
		original := strings.TrimSuffix(videoPath, ext) + "_original" + ext
		if err := os.WriteFile(original, []byte("pre-enhance"), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(videoPath, []byte("enhanced"), 0o644)
}

// recordingConcat captures the input order and writes the output file.
type recordingConcat struct {
	mu    sync.Mutex
	files []string
}

func (c *recordingConcat) Concatenate(_ context.Context, files []string, output string) (float64, error) {
	c.mu.Lock()
	c.files = append([]string(nil), files...)
	c.mu.Unlock()
	if err := os.WriteFile(output, []byte("final"), 0o644); err != nil {
		return 0, err
	}
	return float64(len(files)) * 2.0, nil
}

type harness struct {
	runner  *Runner
	plan    *fakePlanner
	fetcher *fakeFetcher
	trans   *fakeTranscoder
	concat  *recordingConcat
	enh     *fakeEnhancer
	outDir  string
	tmpDir  string
}

func newHarness(t *testing.T, picks []planner.Pick, cfg config.PipelineConfig) *harness {
	t.Helper()
	outDir := t.TempDir()
	tmpDir := t.TempDir()
	cacheDir := t.TempDir()

	h := &harness{
		plan:    &fakePlanner{picks: picks},
		fetcher: &fakeFetcher{dir: cacheDir, fails: map[string]error{}},
		trans:   &fakeTranscoder{},
		concat:  &recordingConcat{},
		enh:     &fakeEnhancer{},
		outDir:  outDir,
		tmpDir:  tmpDir,
	}
	h.runner = New(
		h.plan,
		h.fetcher,
		h.trans,
		h.concat,
		h.enh,
		fakeProber{dur: 2.0},
		cfg,
		outDir, tmpDir,
		nil,
	)
	return h
}

func clipPick(text, videoID string) planner.Pick {
	return planner.Pick{Kind: planner.PickWord, Text: text, VideoID: videoID, Start: 1, End: 2}
}

func TestRun_Success(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA"), clipPick("world", "vidB")}
	h := newHarness(t, picks, config.PipelineConfig{})

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello world"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, filepath.Join(h.outDir, result.JobID+".mp4"), result.OutputPath)
	assert.FileExists(t, result.OutputPath)
	assert.Empty(t, result.MissingWords)
	assert.Empty(t, result.Warnings)

	// Segments reach the concatenator in plan order.
	require.Len(t, h.concat.files, 2)
	assert.Contains(t, h.concat.files[0], "seg-0000")
	assert.Contains(t, h.concat.files[1], "seg-0001")

	// Timings lay end to end from zero.
	require.Len(t, result.Timings, 2)
	assert.Equal(t, WordTiming{Text: "hello", Start: 0, End: 2, Source: "vidA"}, result.Timings[0])
	assert.Equal(t, WordTiming{Text: "world", Start: 2, End: 4, Source: "vidB"}, result.Timings[1])

	// Scratch dir cleaned up.
	entries, err := os.ReadDir(h.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_DefaultMaxPhraseLen(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.runner.DefaultMaxPhraseLen = 7

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello"})
	require.NoError(t, err)
	require.Len(t, h.plan.opts, 1)
	assert.Equal(t, 7, h.plan.opts[0].MaxPhraseLen)

	// A request override wins over the configured default.
	_, err = h.runner.Run(context.Background(), Request{Sentence: "hello", MaxPhraseLen: 3})
	require.NoError(t, err)
	require.Len(t, h.plan.opts, 2)
	assert.Equal(t, 3, h.plan.opts[1].MaxPhraseLen)
}

func TestRun_EmptySentence(t *testing.T) {
	h := newHarness(t, nil, config.PipelineConfig{})

	_, err := h.runner.Run(context.Background(), Request{Sentence: "  !!! "})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRun_TitleCards(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello", IntroText: "My Video", OutroText: "My Video"})
	require.NoError(t, err)

	require.Len(t, h.concat.files, 3)
	assert.Contains(t, h.concat.files[0], "intro.mp4")
	assert.Contains(t, h.concat.files[2], "outro.mp4")
	assert.Equal(t, []string{"My Video", "My Video"}, h.trans.cards)

	// Word timings shift past the probed intro duration.
	require.Len(t, result.Timings, 1)
	assert.Equal(t, 2.0, result.Timings[0].Start)
	assert.Equal(t, 4.0, result.Timings[0].End)
}

func TestRun_SubtitlesPassPickText(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA"), clipPick("world", "vidB")}
	h := newHarness(t, picks, config.PipelineConfig{})

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello world", Subtitles: true})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"hello", "world"}, h.trans.subs)
}

func TestRun_FetchFailureSubstitutesPlaceholder(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA"), clipPick("world", "vidB")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.fetcher.fails["vidB"] = fetch.ErrPermanent

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello world"})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, []string{"world"}, result.MissingWords)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "world")
	assert.Equal(t, []string{"world"}, h.trans.cards)
	require.Len(t, h.concat.files, 2)
}

func TestRun_FailOnMissingFetchFailure(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{FailOnMissing: true})
	h.fetcher.fails["vidA"] = fetch.ErrPermanent

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vidA")
}

func TestRun_FailOnMissingPlannerPlaceholder(t *testing.T) {
	picks := []planner.Pick{
		clipPick("hello", "vidA"),
		{Kind: planner.PickPlaceholder, Text: "zorblax"},
	}
	h := newHarness(t, picks, config.PipelineConfig{FailOnMissing: true})

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello zorblax"})
	assert.ErrorIs(t, err, ErrMissingWords)
	assert.Contains(t, err.Error(), "zorblax")
}

func TestRun_PlannerPlaceholderRendersCard(t *testing.T) {
	picks := []planner.Pick{
		{Kind: planner.PickPlaceholder, Text: "zorblax"},
		clipPick("hello", "vidA"),
	}
	h := newHarness(t, picks, config.PipelineConfig{})

	result, err := h.runner.Run(context.Background(), Request{Sentence: "zorblax hello"})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, []string{"zorblax"}, result.MissingWords)
	assert.Equal(t, []string{"zorblax"}, h.trans.cards)
	assert.Empty(t, h.fetcher.calls, "placeholders are never fetched")

	// Planner placeholders carry no source.
	assert.Empty(t, result.Timings[0].Source)
}

func TestRun_TranscodeFailureSkipsPick(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA"), clipPick("world", "vidB")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.trans.failText = "hello"

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello world", Subtitles: true})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, []string{"hello"}, result.MissingWords)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "hello")

	// The surviving pick still reaches the concatenator, and the gap
	// does not stall the reorder buffer.
	require.Len(t, h.concat.files, 1)
	assert.Contains(t, h.concat.files[0], "seg-0001")
	require.Len(t, result.Timings, 1)
	assert.Equal(t, "world", result.Timings[0].Text)
	assert.Equal(t, 0.0, result.Timings[0].Start)
}

func TestRun_TranscodeFailureFatalWithFailOnMissing(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA"), clipPick("world", "vidB")}
	h := newHarness(t, picks, config.PipelineConfig{FailOnMissing: true})
	h.trans.failText = "world"

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello world", Subtitles: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode blew up")
}

func TestRun_AllTranscodesFailFailsJob(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.trans.failText = "hello"

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello", Subtitles: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 segments")
}

func TestRun_EnhanceSuccess(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.enh.enabled = true
	h.enh.keep = true

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello", Enhance: true})
	require.NoError(t, err)

	assert.True(t, h.enh.called)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.OriginalPath)
	assert.FileExists(t, result.OriginalPath)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "enhanced", string(data))
}

func TestRun_EnhanceFailureIsWarning(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.enh.enabled = true
	h.enh.err = errors.New("service down")

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello", Enhance: true})
	require.NoError(t, err)

	// All picks rendered, so a failed enhancement stays a success.
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, result.MissingWords)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "service down")
	assert.FileExists(t, result.OutputPath)
}

func TestRun_EnhanceSkippedWhenDisabled(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})
	h.enh.enabled = false

	_, err := h.runner.Run(context.Background(), Request{Sentence: "hello", Enhance: true})
	require.NoError(t, err)
	assert.False(t, h.enh.called)
}

func TestRun_ProgressCallback(t *testing.T) {
	picks := make([]planner.Pick, 5)
	for i := range picks {
		picks[i] = clipPick(fmt.Sprintf("w%d", i), fmt.Sprintf("vid%d", i))
	}
	h := newHarness(t, picks, config.PipelineConfig{DownloadWorkers: 2, ProcessingWorkers: 2})

	var mu sync.Mutex
	var seen []int
	result, err := h.runner.Run(context.Background(), Request{
		Sentence: "w0 w1 w2 w3 w4",
		Progress: func(completed, total int) {
			mu.Lock()
			seen = append(seen, completed)
			mu.Unlock()
			assert.Equal(t, 5, total)
		},
	})
	require.NoError(t, err)

	assert.Len(t, seen, 5)
	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, h.concat.files, 5)
	for i, f := range h.concat.files {
		assert.Contains(t, f, fmt.Sprintf("seg-%04d", i))
	}
}

func TestRun_KeepTemp(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{KeepTemp: true})

	result, err := h.runner.Run(context.Background(), Request{Sentence: "hello"})
	require.NoError(t, err)

	scratch := filepath.Join(h.tmpDir, "job-"+result.JobID)
	assert.DirExists(t, scratch)
}

func TestRun_Cancelled(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner.Run(ctx, Request{Sentence: "hello"})
	assert.Error(t, err)
}

// blockingFetcher parks until the job context is cancelled.
type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ fetch.Request) (string, error) {
	close(f.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_CancelMidFetchLeavesNoScratch(t *testing.T) {
	picks := []planner.Pick{clipPick("hello", "vidA")}
	h := newHarness(t, picks, config.PipelineConfig{})

	bf := &blockingFetcher{started: make(chan struct{})}
	h.runner.fetcher = bf

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-bf.started
		cancel()
	}()

	_, err := h.runner.Run(ctx, Request{Sentence: "hello"})
	require.Error(t, err)

	entries, err := os.ReadDir(h.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "cancelled job must remove its scratch directory")
}
