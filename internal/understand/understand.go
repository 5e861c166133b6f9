// Package understand calls an OpenAI-compatible chat endpoint to lift
// structured permit data out of raw page text. Everything the model returns
// passes validation before it reaches the merge layer; entries that fail are
// dropped individually. The pipeline treats the whole service as
// best-effort: a missing credential or a failed call leaves the acquisition
// heuristic-only.
package understand

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// ErrNoCredential reports that no API key is configured. Callers degrade to
// heuristic-only mode instead of failing the acquisition.
var ErrNoCredential = errors.New("understand: no api key configured")

// Understanding is the validated payload of one extraction call. Quality is
// the model's self-reported completeness estimate, clamped to [0,1].
type Understanding struct {
	Permits         []permits.PermitType `json:"permits,omitempty"`
	Forms           []permits.PermitForm `json:"forms,omitempty"`
	Fees            []permits.PermitFee  `json:"fees,omitempty"`
	Contact         *permits.ContactInfo `json:"contact,omitempty"`
	Requirements    []string             `json:"requirements,omitempty"`
	ProcessingTimes map[string]string    `json:"processing_times,omitempty"`
	Quality         float64              `json:"quality"`
}

// Validation is the cross-reference verdict over accumulated acquisition
// data: the validator's own confidence plus anything it found implausible.
type Validation struct {
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues,omitempty"`
}

// Config carries the chat endpoint settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	MaxChars int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 24000
	}
	return c
}

// Client talks to one OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client, failing fast with ErrNoCredential when no API
// key is set so callers can pick heuristic-only mode up front.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

const extractSystemPrompt = `You extract permit information from United States government web pages. Respond with a single JSON object and no prose, using this shape:
{"permits":[{"name":"","category":"","description":"","processing_time":"","requirements":[""]}],
 "forms":[{"name":"","url":"","file_type":"","required":false}],
 "fees":[{"type":"","amount":0,"unit":"","description":""}],
 "contact":{"department":"","phone":"","email":""},
 "requirements":[""],
 "processing_times":{"permit type":"duration"},
 "quality":0.0}
Omit anything the page does not state. Form URLs must be absolute. quality is your confidence in the completeness of this extraction, between 0 and 1.`

// ExtractPermitData asks the model to structure the page text, then
// validates everything it returned. Only an empty input, a transport
// failure, or undecodable output is an error.
func (c *Client) ExtractPermitData(ctx context.Context, text, sourceURL string) (*Understanding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("understand: empty text for %s", sourceURL)
	}
	if len(text) > c.cfg.MaxChars {
		text = text[:c.cfg.MaxChars]
	}

	content, err := c.chat(ctx, extractSystemPrompt, "Source: "+sourceURL+"\n\n"+text)
	if err != nil {
		return nil, err
	}

	u, err := parseUnderstanding([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("understand %s: %w", sourceURL, err)
	}
	c.logger.Debug("understanding parsed",
		zap.String("url", sourceURL),
		zap.Int("permits", len(u.Permits)),
		zap.Int("forms", len(u.Forms)),
		zap.Int("fees", len(u.Fees)),
		zap.Float64("quality", u.Quality))
	return u, nil
}

const validateSystemPrompt = `You review extracted United States permit data for internal consistency and plausibility. Respond with a single JSON object and no prose: {"confidence":0.0,"issues":[""]}. confidence is between 0 and 1; issues lists anything contradictory or implausible, empty if none.`

// CrossReference asks the model to judge the accumulated result. The
// returned confidence is clamped to [0,1].
func (c *Client) CrossReference(ctx context.Context, result *permits.AcquisitionResult) (*Validation, error) {
	summary, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result for validation: %w", err)
	}
	if len(summary) > c.cfg.MaxChars {
		summary = summary[:c.cfg.MaxChars]
	}

	content, err := c.chat(ctx, validateSystemPrompt, string(summary))
	if err != nil {
		return nil, err
	}

	var v Validation
	if err := json.Unmarshal(extractJSON([]byte(content)), &v); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}
	v.Confidence = clamp01(v.Confidence)
	return &v, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const maxResponseBytes = 1 << 20

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat endpoint: %s", decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat endpoint status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chat endpoint returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
