// Package handlers provides the HTTP API handlers for clipstitch.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/clipstitch/clipstitch/internal/pipeline"
)

// JobRunner executes composition jobs. Implemented by pipeline.Runner.
type JobRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// GenerateHandler handles synchronous video generation.
type GenerateHandler struct {
	runner JobRunner
	logger *slog.Logger
}

// NewGenerateHandler creates a generate handler.
func NewGenerateHandler(runner JobRunner, logger *slog.Logger) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{runner: runner, logger: logger}
}

// GenerateRequest is the /generate-video request body.
type GenerateRequest struct {
	Text string `json:"text" minLength:"1" maxLength:"1000" doc:"Sentence to compose from catalog clips"`
	// Lang is accepted for API compatibility; the catalog is single-language.
	Lang                 string   `json:"lang,omitempty" doc:"Transcript language hint"`
	MaxPhraseLength      int      `json:"maxPhraseLength,omitempty" minimum:"1" maximum:"50" doc:"Longest multi-word phrase to search for"`
	ClipPaddingStart     *float64 `json:"clipPaddingStart,omitempty" minimum:"0" maximum:"5" doc:"Seconds of lead-in kept before each clip"`
	ClipPaddingEnd       *float64 `json:"clipPaddingEnd,omitempty" minimum:"0" maximum:"5" doc:"Seconds kept after each clip"`
	AddSubtitles         bool     `json:"addSubtitles,omitempty" doc:"Overlay the spoken text on each clip"`
	AspectRatio          string   `json:"aspectRatio,omitempty" enum:"16:9,9:16,1:1" doc:"Output aspect ratio"`
	WatermarkText        string   `json:"watermarkText,omitempty" maxLength:"100"`
	IntroText            string   `json:"introText,omitempty" maxLength:"200"`
	OutroText            string   `json:"outroText,omitempty" maxLength:"200"`
	EnhanceAudio         bool     `json:"enhanceAudio,omitempty" doc:"Run the audio cleanup round-trip"`
	KeepOriginalAudio    *bool    `json:"keepOriginalAudio,omitempty" doc:"Keep the pre-enhancement video alongside the result"`
	MaxDownloadWorkers   int      `json:"maxDownloadWorkers,omitempty" minimum:"1" maximum:"16"`
	MaxProcessingWorkers int      `json:"maxProcessingWorkers,omitempty" minimum:"1" maximum:"16"`
	PreferredChannels    []string `json:"preferredChannels,omitempty" doc:"Channel IDs preferred during clip selection"`
}

// GenerateResponse is the /generate-video response body.
type GenerateResponse struct {
	Status           string                `json:"status" enum:"success,partial_failure" doc:"Job outcome"`
	VideoURL         string                `json:"videoUrl"`
	OriginalVideoURL string                `json:"originalVideoUrl,omitempty"`
	Duration         float64               `json:"duration" doc:"Output duration in seconds"`
	WordTimings      []pipeline.WordTiming `json:"wordTimings"`
	MissingWords     []string              `json:"missingWords,omitempty"`
	Message          string                `json:"message,omitempty"`
}

// GenerateInput is the huma input for the generate operation.
type GenerateInput struct {
	Body GenerateRequest
}

// GenerateOutput is the huma output for the generate operation.
type GenerateOutput struct {
	Body GenerateResponse
}

// Register registers the generate route with the API.
func (h *GenerateHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "generateVideo",
		Method:      "POST",
		Path:        "/generate-video",
		Summary:     "Generate a stitched video",
		Description: "Composes a video of the given sentence from catalog clips. Runs synchronously; long sentences can take minutes.",
		Tags:        []string{"Videos"},
	}, h.Generate)
}

// Generate runs a composition job and maps the result to the API shape.
func (h *GenerateHandler) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	req := pipeline.Request{
		Sentence:          input.Body.Text,
		IntroText:         input.Body.IntroText,
		OutroText:         input.Body.OutroText,
		Subtitles:         input.Body.AddSubtitles,
		Watermark:         input.Body.WatermarkText,
		AspectRatio:       input.Body.AspectRatio,
		PreferredChannels: input.Body.PreferredChannels,
		MaxPhraseLen:      input.Body.MaxPhraseLength,
		PaddingStart:      input.Body.ClipPaddingStart,
		PaddingEnd:        input.Body.ClipPaddingEnd,
		DownloadWorkers:   input.Body.MaxDownloadWorkers,
		ProcessingWorkers: input.Body.MaxProcessingWorkers,
		Enhance:           input.Body.EnhanceAudio,
		KeepOriginalAudio: input.Body.KeepOriginalAudio,
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBadRequest):
			return nil, huma.Error400BadRequest(err.Error())
		case errors.Is(err, pipeline.ErrMissingWords):
			return nil, huma.Error400BadRequest(err.Error())
		case errors.Is(err, context.Canceled):
			// Client gone; nothing useful to write.
			return nil, err
		default:
			h.logger.Error("generation failed", slog.String("error", err.Error()))
			return nil, huma.Error500InternalServerError("video generation failed")
		}
	}

	resp := GenerateResponse{
		Status:       "success",
		VideoURL:     "/videos/" + filepath.Base(result.OutputPath),
		Duration:     result.Duration,
		WordTimings:  result.Timings,
		MissingWords: result.MissingWords,
	}
	if result.OriginalPath != "" {
		resp.OriginalVideoURL = "/videos/" + filepath.Base(result.OriginalPath)
	}
	if result.Status == pipeline.StatusPartial {
		resp.Status = "partial_failure"
		resp.Message = partialMessage(result)
	} else if len(result.Warnings) > 0 {
		resp.Message = result.Warnings[0]
	}

	return &GenerateOutput{Body: resp}, nil
}

func partialMessage(result *pipeline.Result) string {
	if len(result.MissingWords) > 0 {
		return "some words had no usable clips and were rendered as cards"
	}
	if len(result.Warnings) > 0 {
		return result.Warnings[0]
	}
	return "job finished with warnings"
}
