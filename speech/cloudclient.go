package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/voxread/readkit/observability"
)

// CloudClient is a CloudBackend talking to an HTTP synthesis service that
// accepts (text, voice) and returns base64 audio plus a mime type.
type CloudClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     observability.Logger
}

// CloudClientOption mutates a CloudClient under construction.
type CloudClientOption func(*CloudClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) CloudClientOption {
	return func(c *CloudClient) { c.httpc = hc }
}

// WithAPIKey sets the bearer token sent on synthesis requests.
func WithAPIKey(key string) CloudClientOption {
	return func(c *CloudClient) { c.apiKey = key }
}

// NewCloudClient creates a client for the synthesis service at baseURL.
func NewCloudClient(baseURL string, log observability.Logger, opts ...CloudClientOption) *CloudClient {
	if log == nil {
		log = observability.Default()
	}
	c := &CloudClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
	MimeType     string `json:"mimeType"`
}

// Synthesize implements CloudBackend. Callers are responsible for keeping
// text under the service's per-request ceiling (see ChunkText).
func (c *CloudClient) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	body, err := sonic.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, "", fmt.Errorf("encode synthesis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, "", fmt.Errorf("synthesis service returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read synthesis response: %w", err)
	}
	var out synthesizeResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, "", fmt.Errorf("decode synthesis response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio payload: %w", err)
	}
	mime := out.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}
	c.log.Debug("chunk synthesized",
		observability.Int("text_bytes", len(text)),
		observability.Int("audio_bytes", len(audio)),
		observability.String("elapsed", time.Since(start).String()))
	return audio, mime, nil
}
