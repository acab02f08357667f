// Package speech converts final assistant text into an audio clip.
package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Clip is a synthesized audio artifact.
type Clip struct {
	Data     []byte
	MimeType string
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Clip, error)
}

// Config holds MiniMax client settings.
type Config struct {
	APIKey  string
	GroupID string
	BaseURL string
	Model   string
	VoiceID string
	// Format is mp3, wav, flac or pcm.
	Format string
}

// MiniMaxClient implements Synthesizer on the MiniMax T2A v2 API.
type MiniMaxClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewMiniMaxClient creates a MiniMax speech client
func NewMiniMaxClient(cfg Config) (*MiniMaxClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("minimax requires an api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.minimax.io"
	}
	if cfg.Model == "" {
		cfg.Model = "speech-02-hd"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "male-qn-qingse"
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	return &MiniMaxClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type t2aRequest struct {
	Model          string       `json:"model"`
	Text           string       `json:"text"`
	Stream         bool         `json:"stream"`
	OutputFormat   string       `json:"output_format"`
	VoiceSetting   voiceSetting `json:"voice_setting"`
	AudioSetting   audioSetting `json:"audio_setting"`
	SubtitleEnable bool         `json:"subtitle_enable"`
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type audioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type t2aResponse struct {
	Data struct {
		// Audio is hex-encoded when output_format is "hex".
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Synthesize implements Synthesizer
func (c *MiniMaxClient) Synthesize(ctx context.Context, text string) (*Clip, error) {
	body, err := json.Marshal(t2aRequest{
		Model:        c.cfg.Model,
		Text:         text,
		OutputFormat: "hex",
		VoiceSetting: voiceSetting{VoiceID: c.cfg.VoiceID, Speed: 1, Vol: 1},
		AudioSetting: audioSetting{SampleRate: 32000, Bitrate: 128000, Format: c.cfg.Format, Channel: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding t2a request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/v1/t2a_v2"
	if c.cfg.GroupID != "" {
		endpoint += "?GroupId=" + url.QueryEscape(c.cfg.GroupID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building t2a request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("minimax t2a request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("reading t2a response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("minimax t2a returned %d: %s", res.StatusCode, truncate(string(raw), 300))
	}

	var payload t2aResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding t2a response: %w", err)
	}
	if payload.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("minimax t2a failed: %d %s", payload.BaseResp.StatusCode, payload.BaseResp.StatusMsg)
	}

	audioHex := strings.TrimSpace(payload.Data.Audio)
	if audioHex == "" {
		return nil, fmt.Errorf("minimax t2a returned no audio data")
	}
	data, err := hex.DecodeString(audioHex)
	if err != nil {
		return nil, fmt.Errorf("decoding t2a audio hex: %w", err)
	}

	return &Clip{Data: data, MimeType: mimeForFormat(c.cfg.Format)}, nil
}

func mimeForFormat(format string) string {
	switch format {
	case "wav", "pcm":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
