package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

type chatClientOpts struct {
	server  string
	token   string
	persona string
	mode    string
	image   bool
}

func newChatCmd() *cobra.Command {
	opts := &chatClientOpts{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", envOr("PARLEY_SERVER", "http://localhost:8080"), "server base URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("PARLEY_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&opts.persona, "persona", "", "persona code (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", "text", "response mode: text or audio")
	cmd.Flags().BoolVar(&opts.image, "allow-image", false, "allow image replies")
	_ = cmd.MarkFlagRequired("persona")
	return cmd
}

func runChat(ctx context.Context, opts *chatClientOpts) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), ".parley_chat_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("Chatting with %q at %s. Ctrl-D to quit.\n", opts.persona, opts.server)

	var sessionID string
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		sessionID, err = sendTurn(ctx, opts, sessionID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func sendTurn(ctx context.Context, opts *chatClientOpts, sessionID, content string) (string, error) {
	payload := map[string]any{
		"presetRoleCode":  opts.persona,
		"content":         content,
		"responseMode":    opts.mode,
		"allowImageReply": opts.image,
	}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return sessionID, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.server+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return sessionID, err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionID, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return sessionID, fmt.Errorf("server returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream") {
		return readStream(res.Body, sessionID)
	}

	var oneShot struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
		Content   string `json:"content"`
		Audio     *struct {
			URL string `json:"url"`
		} `json:"audio"`
		Image *struct {
			URL string `json:"url"`
		} `json:"image"`
	}
	if err := json.NewDecoder(res.Body).Decode(&oneShot); err != nil {
		return sessionID, err
	}
	fmt.Println(oneShot.Content)
	if oneShot.Audio != nil {
		fmt.Printf("[audio] %s\n", oneShot.Audio.URL)
	}
	if oneShot.Image != nil {
		fmt.Printf("[image] %s\n", oneShot.Image.URL)
	}
	return oneShot.SessionID, nil
}

func readStream(body io.Reader, sessionID string) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
			Content   string `json:"content"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "session":
			sessionID = ev.SessionID
		case "token":
			fmt.Print(ev.Content)
		case "done":
			fmt.Println()
			return sessionID, nil
		case "error":
			fmt.Println()
			return sessionID, errors.New(ev.Error)
		}
	}
	fmt.Println()
	return sessionID, scanner.Err()
}
