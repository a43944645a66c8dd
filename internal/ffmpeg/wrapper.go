package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary string
	Args   []string
	Output string

	cmd     *exec.Cmd
	started time.Time
	mu      sync.RWMutex

	// Recent stderr lines for error reporting
	stderrLines []string
	stderrMu    sync.RWMutex
}

// CommandBuilder builds FFmpeg commands with a fluent API.
// Input arguments apply to the next Input call, so per-input flags like
// -ss and -t land in front of the right -i.
type CommandBuilder struct {
	binary       string
	globalArgs   []string
	pendingInput []string
	inputs       []inputSpec
	filterArgs   []string
	audioFilters []string
	outputArgs   []string
	output       string
	logLevel     string
	overwrite    bool
}

type inputSpec struct {
	args []string
	src  string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// InputArgs adds arguments applied to the next input.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pendingInput = append(b.pendingInput, args...)
	return b
}

// Seek sets the input seek position for the next input.
func (b *CommandBuilder) Seek(seconds float64) *CommandBuilder {
	return b.InputArgs("-ss", formatSeconds(seconds))
}

// Duration limits the read duration of the next input.
func (b *CommandBuilder) Duration(seconds float64) *CommandBuilder {
	return b.InputArgs("-t", formatSeconds(seconds))
}

// InputFormat forces the demuxer for the next input, e.g. "lavfi" or "concat".
func (b *CommandBuilder) InputFormat(format string) *CommandBuilder {
	return b.InputArgs("-f", format)
}

// Input adds an input source, consuming any pending input arguments.
func (b *CommandBuilder) Input(src string) *CommandBuilder {
	b.inputs = append(b.inputs, inputSpec{args: b.pendingInput, src: src})
	b.pendingInput = nil
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioSampleRate sets the audio sample rate.
func (b *CommandBuilder) AudioSampleRate(hz int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(hz))
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// VideoProfile sets the H.264 profile.
func (b *CommandBuilder) VideoProfile(profile string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-profile:v", profile)
	return b
}

// VideoLevel sets the H.264 level.
func (b *CommandBuilder) VideoLevel(level string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-level:v", level)
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// FrameRate forces a constant output frame rate.
func (b *CommandBuilder) FrameRate(fps int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-r", strconv.Itoa(fps), "-vsync", "cfr")
	return b
}

// KeyframeInterval sets the GOP size.
func (b *CommandBuilder) KeyframeInterval(frames int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-g", strconv.Itoa(frames))
	return b
}

// VideoFilter adds a video filter to the -vf chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// AudioFilter adds an audio filter to the -af chain.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.audioFilters = append(b.audioFilters, filter)
	return b
}

// Map selects a stream for the output, e.g. "0:v:0".
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// NoVideo drops video streams from the output.
func (b *CommandBuilder) NoVideo() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vn")
	return b
}

// Shortest ends the output with the shortest input stream.
func (b *CommandBuilder) Shortest() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-shortest")
	return b
}

// FastStart moves the moov atom to the front for progressive playback.
func (b *CommandBuilder) FastStart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.src)
	}

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}
	if len(b.audioFilters) > 0 {
		args = append(args, "-af", strings.Join(b.audioFilters, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		Output:      b.output,
		stderrLines: make([]string, 0, 50),
	}
}

// formatSeconds renders a seconds value without trailing zero noise.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. Stderr is captured so
// failures carry the encoder's own diagnostics.
func (c *Command) Run(ctx context.Context) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	stderrDone := make(chan struct{})
	go c.captureStderr(stderr, stderrDone)

	waitErr := c.cmd.Wait()
	<-stderrDone

	if waitErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted after %s: %w", c.RunDuration().Round(time.Millisecond), ctx.Err())
		}
		if tail := c.StderrTail(); tail != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", waitErr, tail)
		}
		return fmt.Errorf("ffmpeg failed: %w", waitErr)
	}

	return nil
}

// RunDuration returns how long the command has been running.
func (c *Command) RunDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// captureStderr reads FFmpeg stderr into a bounded ring of recent lines.
func (c *Command) captureStderr(stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	const maxLines = 50

	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// StderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) StderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// StderrTail returns the last captured stderr line, if any.
func (c *Command) StderrTail() string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	if len(c.stderrLines) == 0 {
		return ""
	}
	return c.stderrLines[len(c.stderrLines)-1]
}
