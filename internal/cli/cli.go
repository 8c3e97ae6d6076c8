package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasilisp/edurag/internal/api"
)

const DefaultAddr = "http://localhost:8080"

type options struct {
	addr      string
	imagePath string
	listTools bool
}

func imageDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mediaType := http.DetectContentType(raw)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}

	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(raw)), nil
}

func decode(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("server returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func listTools(ctx context.Context, client *http.Client, opts options, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.addr+api.ChatPath, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var result api.ToolsResponse
	if err := decode(resp, &result); err != nil {
		return err
	}

	for _, tool := range result.AvailableTools {
		fmt.Fprintf(out, "%s\t%s\n", tool.Name, tool.Description)
	}
	return nil
}

func ask(ctx context.Context, client *http.Client, opts options, query string, out io.Writer) error {
	chat := api.ChatRequest{
		Messages: []api.ChatMessage{{Role: "user", Content: query}},
	}

	if opts.imagePath != "" {
		image, err := imageDataURL(opts.imagePath)
		if err != nil {
			return err
		}
		chat.Image = image
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.addr+api.ChatPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var result api.ChatResponse
	if err := decode(resp, &result); err != nil {
		return err
	}

	fmt.Fprintln(out, result.Message)
	for _, toolError := range result.ToolErrors {
		fmt.Fprintf(out, "tool %s failed: %s\n", toolError.Tool, toolError.Error)
	}
	return nil
}

func run(ctx context.Context, args []string, stdin io.Reader, out io.Writer) error {
	var opts options

	flags := flag.NewFlagSet("cli", flag.ContinueOnError)
	flags.StringVar(&opts.addr, "addr", DefaultAddr, "server address")
	flags.StringVar(&opts.imagePath, "image", "", "image file to analyze")
	flags.BoolVar(&opts.listTools, "tools", false, "list available tools")
	if err := flags.Parse(args); err != nil {
		return err
	}
	opts.addr = strings.TrimSuffix(opts.addr, "/")

	client := &http.Client{Timeout: 5 * time.Minute}

	if opts.listTools {
		return listTools(ctx, client, opts, out)
	}

	var query string
	if flags.NArg() == 0 {
		input, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		query = strings.TrimSpace(string(input))
	} else {
		query = strings.Join(flags.Args(), " ")
	}

	if query == "" && opts.imagePath == "" {
		return fmt.Errorf("empty query")
	}

	return ask(ctx, client, opts, query, out)
}

func Main(args []string) {
	if err := run(context.Background(), args, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("cli request failed")
	}
}
