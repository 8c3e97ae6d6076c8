package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vasilisp/edurag/internal/api"
)

func fakeServer(t *testing.T, got *api.ChatRequest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.ChatPath {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(api.ToolsResponse{
				AvailableTools: []api.ToolInfo{{Name: "web_search", Description: "search"}},
				Message:        api.ReadyMessage,
			})
			return
		}

		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if got.Messages[0].Content == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "model overloaded"})
			return
		}

		json.NewEncoder(w).Encode(api.ChatResponse{
			Message:    "answer",
			ToolErrors: []api.ToolError{{Tool: "web_search", Error: "timeout"}},
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestAskFromArgs(t *testing.T) {
	var got api.ChatRequest
	srv := fakeServer(t, &got)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", srv.URL, "what", "is", "spacing?"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(got.Messages) != 1 || got.Messages[0].Content != "what is spacing?" || got.Messages[0].Role != "user" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Image != "" {
		t.Errorf("unexpected image %q", got.Image)
	}
	if out.String() != "answer\ntool web_search failed: timeout\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestAskFromStdin(t *testing.T) {
	var got api.ChatRequest
	srv := fakeServer(t, &got)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", srv.URL + "/"}, strings.NewReader("  from stdin\n"), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got.Messages[0].Content != "from stdin" {
		t.Errorf("unexpected query %q", got.Messages[0].Content)
	}
}

func TestAskWithImage(t *testing.T) {
	var got api.ChatRequest
	srv := fakeServer(t, &got)

	path := filepath.Join(t.TempDir(), "pic.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", srv.URL, "-image", path}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.HasPrefix(got.Image, "data:image/png;base64,") {
		t.Errorf("unexpected image %q", got.Image)
	}
}

func TestAskServerError(t *testing.T) {
	var got api.ChatRequest
	srv := fakeServer(t, &got)

	err := run(context.Background(), []string{"-addr", srv.URL, "fail"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestListTools(t *testing.T) {
	srv := fakeServer(t, &api.ChatRequest{})

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", srv.URL, "-tools"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.String() != "web_search\tsearch\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestEmptyQuery(t *testing.T) {
	if err := run(context.Background(), []string{"-addr", "http://127.0.0.1:1"}, strings.NewReader("   "), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestImageRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := imageDataURL(path); err == nil {
		t.Fatal("expected error for non-image file")
	}
}
