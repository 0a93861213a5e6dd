package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/raphaelgruber/streamscribe/internal/audio"
)

// DefaultGoogleEndpoint is the Cloud Speech-to-Text v1 synchronous endpoint.
const DefaultGoogleEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

// SyncLimit is the longest audio the synchronous endpoint accepts. Longer
// buffers go through a long-running operation.
const SyncLimit = time.Minute

const defaultPollInterval = 2 * time.Second

// GoogleClient implements Service against Cloud Speech-to-Text v1.
type GoogleClient struct {
	endpoint     string
	base         string // endpoint with the method suffix removed
	apiKey       string
	language     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
}

// Compile-time check that GoogleClient implements Service.
var _ Service = (*GoogleClient)(nil)

// GoogleOption customizes a GoogleClient.
type GoogleOption func(*GoogleClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleClient) { g.httpClient = c }
}

// WithPollInterval sets how often a long-running operation is checked.
func WithPollInterval(d time.Duration) GoogleOption {
	return func(g *GoogleClient) { g.pollInterval = d }
}

// NewGoogleClient creates a client. ratePerSec <= 0 disables client-side
// rate limiting. Requests carry no timeout; callers bound them with ctx.
func NewGoogleClient(endpoint, apiKey, language string, ratePerSec float64, opts ...GoogleOption) *GoogleClient {
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	if language == "" {
		language = "en-US"
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	base := strings.TrimSuffix(endpoint, "speech:recognize")
	if base == endpoint {
		base = strings.TrimSuffix(endpoint, "/") + "/"
	}

	g := &GoogleClient{
		endpoint:     endpoint,
		base:         base,
		apiKey:       apiKey,
		language:     language,
		httpClient:   &http.Client{},
		limiter:      rate.NewLimiter(limit, 1),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognitionConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type recognitionAudio struct {
	Content string `json:"content"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// operation is a long-running recognition as returned by
// speech:longrunningrecognize and operations/{name}.
type operation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Error    *apiError         `json:"error"`
	Response recognizeResponse `json:"response"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// Recognize sends pcm as LINEAR16 and returns the best transcript of each
// result joined by spaces. Audio longer than SyncLimit is recognized as a
// long-running operation.
func (g *GoogleClient) Recognize(ctx context.Context, pcm *audio.PCM) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &ServiceError{Detail: "rate limiter: " + err.Error(), Err: err}
	}

	body, err := json.Marshal(recognizeRequest{
		Config: recognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: pcm.SampleRate,
			LanguageCode:    g.language,
		},
		Audio: recognitionAudio{Content: base64.StdEncoding.EncodeToString(pcm.LINEAR16())},
	})
	if err != nil {
		return "", fmt.Errorf("marshal recognize request: %w", err)
	}

	var out recognizeResponse
	if pcm.Duration() > SyncLimit {
		out, err = g.recognizeLong(ctx, body)
	} else {
		err = g.call(ctx, http.MethodPost, g.endpoint, body, &out)
	}
	if err != nil {
		return "", err
	}
	return bestTranscript(out)
}

// recognizeLong starts an operation and polls it until it is done.
func (g *GoogleClient) recognizeLong(ctx context.Context, body []byte) (recognizeResponse, error) {
	var op operation
	if err := g.call(ctx, http.MethodPost, g.base+"speech:longrunningrecognize", body, &op); err != nil {
		return recognizeResponse{}, err
	}
	name := op.Name
	if name == "" && !op.Done {
		return recognizeResponse{}, &ServiceError{Detail: "long-running operation without a name"}
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return recognizeResponse{}, &ServiceError{Detail: "wait for operation " + name + ": " + ctx.Err().Error(), Err: ctx.Err()}
		case <-ticker.C:
		}
		op = operation{}
		if err := g.call(ctx, http.MethodGet, g.base+"operations/"+url.PathEscape(name), nil, &op); err != nil {
			return recognizeResponse{}, err
		}
	}

	if op.Error != nil {
		return recognizeResponse{}, &ServiceError{StatusCode: op.Error.Code, Detail: op.Error.Message}
	}
	return op.Response, nil
}

// call sends one request and decodes a 200 response into out.
func (g *GoogleClient) call(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create recognize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Detail: "read response: " + err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ServiceError{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Detail: "decode response: " + err.Error(), Err: err}
	}
	return nil
}

func bestTranscript(out recognizeResponse) (string, error) {
	parts := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	return strings.Join(parts, " "), nil
}

func errorDetail(data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
