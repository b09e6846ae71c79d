package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"geminichat/internal/config"
	"geminichat/internal/request"
)

type Options struct {
	APIKey        string
	Endpoint      string
	PrimaryModel  string
	FallbackModel string
	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	apiKey     string
	endpoint   string
	primary    string
	fallback   string
	httpClient *http.Client
	log        *slog.Logger
}

func New(opts Options) *Client {
	c := &Client{
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		primary:    opts.PrimaryModel,
		fallback:   opts.FallbackModel,
		httpClient: opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = config.DefaultEndpoint
	}
	if c.primary == "" {
		c.primary = config.DefaultPrimaryModel
	}
	if c.fallback == "" {
		c.fallback = config.DefaultFallbackModel
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

type wireInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type generateRequest struct {
	Contents []wireContent `json:"contents"`
}

// EncodeRequest wraps parts as a single user turn.
func EncodeRequest(parts []request.Part) ([]byte, error) {
	wire := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case request.TextPart:
			wire = append(wire, wirePart{Text: p.Text})
		case request.InlineDataPart:
			wire = append(wire, wirePart{InlineData: &wireInlineData{MimeType: p.MimeType, Data: p.Base64}})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(generateRequest{
		Contents: []wireContent{{Role: "user", Parts: wire}},
	})
}

// Send issues the request against the primary model and retries once against
// the fallback model when the primary reports an exceeded quota. It always
// returns reply text; transport failures map to NetworkErrorText.
func (c *Client) Send(ctx context.Context, parts []request.Part) string {
	payload, err := EncodeRequest(parts)
	if err != nil {
		c.log.Error("encode request", "error", err)
		return NetworkErrorText
	}

	res, err := c.generate(ctx, c.primary, payload)
	if err != nil {
		return NetworkErrorText
	}
	if res.QuotaExceeded() {
		c.log.Warn("quota exceeded, retrying with fallback model", "model", c.primary, "fallback", c.fallback)
		res, err = c.generate(ctx, c.fallback, payload)
		if err != nil {
			return NetworkErrorText
		}
	}
	return res.Reply()
}

func (c *Client) generate(ctx context.Context, model string, payload []byte) (Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL(model), bytes.NewReader(payload))
	if err != nil {
		err = redact(err)
		c.log.Error("create request", "model", model, "error", err)
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = redact(err)
		c.log.Error("generate request failed", "model", model, "error", err, "duration", time.Since(start))
		return Result{}, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("read response", "model", model, "error", err)
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	res, err := ParseResponse(body)
	if err != nil {
		c.log.Error("parse response", "model", model, "status", resp.StatusCode, "error", err)
		return Result{}, err
	}

	c.log.Info("generate attempt",
		"model", model,
		"status", resp.StatusCode,
		"outcome", res.Kind.String(),
		"duration", time.Since(start),
	)
	return res, nil
}

func (c *Client) modelURL(model string) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	return c.endpoint + "/v1beta/models/" + url.PathEscape(model) + ":generateContent?" + q.Encode()
}

// redact drops the URL from a url.Error, since the URL carries the key.
func redact(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
