package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultStabilityEndpoint = "https://api.stability.ai/v2beta/stable-image/generate/sd3"

var validStabilityModels = map[string]bool{
	"sd3.5-large":       true,
	"sd3.5-large-turbo": true,
	"sd3.5-medium":      true,
	"sd3.5-flash":       true,
}

var sd35Prefix = regexp.MustCompile(`^sd-?3[.-]?5-?`)

// NormalizeModelName maps loosely spelled SD3.5 model names onto the
// identifiers the Stability API accepts. Anything unrecognized falls
// back to sd3.5-large.
func NormalizeModelName(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "sd3.5-large"
	}
	compact := strings.ToLower(trimmed)
	compact = regexp.MustCompile(`[\s_]+`).ReplaceAllString(compact, "-")
	normalized := sd35Prefix.ReplaceAllString(compact, "sd3.5-")
	if validStabilityModels[normalized] {
		return normalized
	}
	return "sd3.5-large"
}

// StabilityConfig holds Stability client settings.
type StabilityConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	// OutputFormat is png, jpeg or webp.
	OutputFormat string
	AspectRatio  string
}

// StabilityClient implements Generator on the Stability stable-image API.
type StabilityClient struct {
	cfg        StabilityConfig
	httpClient *http.Client
}

// NewStabilityClient creates a Stability image client
func NewStabilityClient(cfg StabilityConfig) (*StabilityClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("stability requires an api key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultStabilityEndpoint
	}
	cfg.Model = NormalizeModelName(cfg.Model)
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "png"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "1:1"
	}
	return &StabilityClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Generate implements Generator
func (c *StabilityClient) Generate(ctx context.Context, prompt string) (*Artifact, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"prompt":        prompt,
		"output_format": c.cfg.OutputFormat,
		"aspect_ratio":  c.cfg.AspectRatio,
		"model":         c.cfg.Model,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("encoding form field %s: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("building stability request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "image/*")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stability request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("reading stability response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stability returned %d: %s", res.StatusCode, truncate(string(data), 300))
	}

	mimeType := res.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &Artifact{
		Data:     data,
		MimeType: mimeType,
		Ext:      extForFormat(c.cfg.OutputFormat),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
