package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/clipstitch/clipstitch/pkg/httpclient"
)

// Auphonic production statuses we react to; anything else means still working.
const (
	statusDone  = "Done"
	statusError = "Error"
)

// production is the subset of an Auphonic production we consume.
type production struct {
	UUID         string       `json:"uuid"`
	StatusString string       `json:"status_string"`
	ErrorMessage string       `json:"error_message"`
	OutputFiles  []outputFile `json:"output_files"`
}

type outputFile struct {
	DownloadURL string `json:"download_url"`
}

type apiEnvelope struct {
	StatusCode   int        `json:"status_code"`
	ErrorMessage string     `json:"error_message"`
	Data         production `json:"data"`
}

// apiClient talks to the Auphonic REST API.
type apiClient struct {
	baseURL string
	token   string
	http    *httpclient.Client
}

func newAPIClient(baseURL, token string, client *httpclient.Client) *apiClient {
	return &apiClient{baseURL: baseURL, token: token, http: client}
}

// createProduction registers a new production with the fixed speech-cleanup
// preset and an mp3 192k output.
func (c *apiClient) createProduction(ctx context.Context, title string) (string, error) {
	payload := map[string]any{
		"metadata": map[string]any{"title": title},
		"algorithms": map[string]any{
			// denoisemethod dynamic with explicit amounts; leveler and
			// normloudness 0 mean "auto on" in the Auphonic API.
			"denoisemethod":  "dynamic",
			"denoiseamount":  6,
			"dehum":          0,
			"dehumamount":    6,
			"leveler":        0,
			"normloudness":   0,
			"loudnesstarget": -16,
			"deverbamount":   3,
			"debreathamount": 3,
		},
		"output_files": []map[string]any{
			{"format": "mp3", "bitrate": 192},
		},
	}

	data, err := c.postJSON(ctx, c.baseURL+"/productions.json", payload)
	if err != nil {
		return "", fmt.Errorf("creating production: %w", err)
	}
	if data.UUID == "" {
		return "", fmt.Errorf("creating production: no uuid in response")
	}
	return data.UUID, nil
}

// upload sends the extracted audio as multipart input_file.
func (c *apiClient) upload(ctx context.Context, uuid, audioPath string) error {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("reading audio for upload: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("input_file", filepath.Base(audioPath))
	if err != nil {
		return err
	}
	if _, err := part.Write(audio); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/production/%s/upload.json", c.baseURL, uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploading audio: %w", err)
	}
	defer resp.Body.Close()

	if _, err := decodeEnvelope(resp); err != nil {
		return fmt.Errorf("uploading audio: %w", err)
	}
	return nil
}

// start begins processing an uploaded production.
func (c *apiClient) start(ctx context.Context, uuid string) error {
	url := fmt.Sprintf("%s/production/%s/start.json", c.baseURL, uuid)
	if _, err := c.postJSON(ctx, url, nil); err != nil {
		return fmt.Errorf("starting production: %w", err)
	}
	return nil
}

// status fetches the current production state.
func (c *apiClient) status(ctx context.Context, uuid string) (*production, error) {
	url := fmt.Sprintf("%s/production/%s.json", c.baseURL, uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching production status: %w", err)
	}
	defer resp.Body.Close()

	data, err := decodeEnvelope(resp)
	if err != nil {
		return nil, fmt.Errorf("fetching production status: %w", err)
	}
	return data, nil
}

// download streams a result file to dest.
func (c *apiClient) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("downloading result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading result: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("writing result file: %w", err)
	}
	return f.Close()
}

func (c *apiClient) postJSON(ctx context.Context, url string, payload any) (*production, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}

func (c *apiClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func decodeEnvelope(resp *http.Response) (*production, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed, check the API token")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var env apiEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.ErrorMessage != "" {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, env.ErrorMessage)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &env.Data, nil
}
