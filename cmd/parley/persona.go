package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage personas on a running server",
	}
	cmd.AddCommand(newPersonaAddCmd(), newPersonaListCmd())
	return cmd
}

func newPersonaAddCmd() *cobra.Command {
	var (
		server       string
		internalKey  string
		code         string
		name         string
		description  string
		systemPrompt string
		promptFile   string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("reading prompt file: %w", err)
				}
				systemPrompt = string(data)
			}
			if strings.TrimSpace(systemPrompt) == "" {
				return fmt.Errorf("either --system-prompt or --prompt-file is required")
			}

			body, err := json.Marshal(map[string]any{
				"code":         code,
				"name":         name,
				"description":  description,
				"systemPrompt": systemPrompt,
			})
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				server+"/api/internal/presets", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-internal-api-key", internalKey)

			res, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer res.Body.Close()

			raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
			if res.StatusCode != http.StatusCreated {
				return fmt.Errorf("server returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
			}
			fmt.Println(strings.TrimSpace(string(raw)))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("PARLEY_SERVER", "http://localhost:8080"), "server base URL")
	cmd.Flags().StringVar(&internalKey, "internal-key", os.Getenv("INTERNAL_API_KEY"), "internal API key")
	cmd.Flags().StringVar(&code, "code", "", "stable persona code")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&description, "description", "", "short description")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt text")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "file holding the system prompt")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPersonaListCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPersonas(cmd.Context(), server)
		},
	}
	cmd.Flags().StringVar(&server, "server", envOr("PARLEY_SERVER", "http://localhost:8080"), "server base URL")
	return cmd
}

func listPersonas(ctx context.Context, server string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/presets", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("server returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload struct {
		Presets []struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"presets"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tDESCRIPTION")
	for _, p := range payload.Presets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Code, p.Name, p.Description)
	}
	return w.Flush()
}
