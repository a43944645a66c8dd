package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// SearchResult is one transcript hit.
type SearchResult struct {
	VideoID     string  `json:"videoId"`
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	ChannelName string  `json:"channelName,omitempty"`
}

// SearchProvider answers free-text transcript queries. The core ships
// without an implementation; deployments plug one in.
type SearchProvider interface {
	Search(ctx context.Context, query, lang string, limit int) ([]SearchResult, error)
}

// SearchHandler exposes the transcript search route.
type SearchHandler struct {
	provider SearchProvider
}

// NewSearchHandler creates a search handler. provider may be nil, in
// which case the route answers 501.
func NewSearchHandler(provider SearchProvider) *SearchHandler {
	return &SearchHandler{provider: provider}
}

// SearchInput is the huma input for the search operation.
type SearchInput struct {
	Query string `query:"q" minLength:"1" doc:"Text to search transcripts for"`
	Lang  string `query:"lang" doc:"Transcript language hint"`
	Limit int    `query:"limit" minimum:"1" maximum:"100" default:"20"`
}

// SearchOutput is the huma output for the search operation.
type SearchOutput struct {
	Body struct {
		Results []SearchResult `json:"results"`
	}
}

// Register registers the search route with the API.
func (h *SearchHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "searchTranscripts",
		Method:      "GET",
		Path:        "/search",
		Summary:     "Search transcripts",
		Description: "Full-text transcript search. Answers 501 when no search provider is configured.",
		Tags:        []string{"Catalog"},
	}, h.Search)
}

// Search delegates to the configured provider.
func (h *SearchHandler) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if h.provider == nil {
		return nil, huma.Error501NotImplemented("transcript search is not configured")
	}

	results, err := h.provider.Search(ctx, input.Query, input.Lang, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("search failed")
	}

	out := &SearchOutput{}
	out.Body.Results = results
	if out.Body.Results == nil {
		out.Body.Results = []SearchResult{}
	}
	return out, nil
}
