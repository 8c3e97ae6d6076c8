package backai

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/vasilisp/edurag/pkg/tools"
)

type fakeGenerator struct {
	mu            sync.Mutex
	generateCalls int
	describeCalls int
	history       []Message
	retrieved     string
	image         string

	reply       string
	description string
	genErr      error
	descErr     error
	panicMsg    string
}

func (g *fakeGenerator) Generate(_ context.Context, history []Message, retrieved string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.panicMsg != "" {
		panic(g.panicMsg)
	}

	g.generateCalls++
	g.history = history
	g.retrieved = retrieved
	return g.reply, g.genErr
}

func (g *fakeGenerator) DescribeImage(_ context.Context, image string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.describeCalls++
	g.image = image
	return g.description, g.descErr
}

type fakeRetriever struct {
	mu       sync.Mutex
	calls    int
	query    string
	limit    int
	passages []Passage
	err      error
}

func (r *fakeRetriever) Search(_ context.Context, query string, limit int) ([]Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.query = query
	r.limit = limit
	return r.passages, r.err
}

type toolCall struct {
	name string
	args tools.Args
}

type fakeTools struct {
	calls   []toolCall
	results map[string]string
	errs    map[string]error
}

func (f *fakeTools) Execute(_ context.Context, name string, args tools.Args) (string, error) {
	f.calls = append(f.calls, toolCall{name: name, args: args})
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return f.results[name], nil
}

type fixture struct {
	generator *fakeGenerator
	retriever *fakeRetriever
	tools     *fakeTools
	ctx       *Ctx
}

func newFixture(policy ToolFailurePolicy) *fixture {
	f := &fixture{
		generator: &fakeGenerator{reply: "answer", description: "a bar chart of grades"},
		retriever: &fakeRetriever{},
		tools:     &fakeTools{results: map[string]string{}, errs: map[string]error{}},
	}
	f.ctx = NewCtx(f.generator, f.retriever, f.tools, policy)
	return f
}

func (f *fixture) assertNoCollaboratorCalls(t *testing.T) {
	t.Helper()
	if f.generator.generateCalls != 0 || f.generator.describeCalls != 0 {
		t.Errorf("generator called: generate=%d describe=%d", f.generator.generateCalls, f.generator.describeCalls)
	}
	if f.retriever.calls != 0 {
		t.Errorf("retriever called %d times", f.retriever.calls)
	}
	if len(f.tools.calls) != 0 {
		t.Errorf("tools called %d times", len(f.tools.calls))
	}
}

func userRequest(messages ...string) Request {
	req := Request{Messages: []Message{}}
	for _, content := range messages {
		req.Messages = append(req.Messages, Message{Role: RoleUser, Content: content})
	}
	return req
}

func TestQueryRejectsMissingMessages(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"messages": null}`,
		`{"messages": "hello"}`,
		`{"messages": {"role": "user"}}`,
		`{"messages": 3, "image": "abc"}`,
		`{"messages": [1, 2]}`,
		`not json`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			f := newFixture(ToolFailureInline)

			req, err := DecodeRequest(strings.NewReader(body))
			if err == nil {
				_, err = f.ctx.Query(context.Background(), req)
			}

			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if Status(err) != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", Status(err))
			}
			f.assertNoCollaboratorCalls(t)
		})
	}
}

func TestQueryNilMessages(t *testing.T) {
	f := newFixture(ToolFailureInline)

	_, err := f.ctx.Query(context.Background(), Request{Image: "abc"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	f.assertNoCollaboratorCalls(t)
}

func TestQueryEmptyMessagesTextBranch(t *testing.T) {
	f := newFixture(ToolFailureInline)

	req, err := DecodeRequest(strings.NewReader(`{"messages": []}`))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	_, err = f.ctx.Query(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	f.assertNoCollaboratorCalls(t)
}

func TestQueryWithoutDirectives(t *testing.T) {
	f := newFixture(ToolFailureInline)
	f.retriever.passages = []Passage{{ID: "a", Text: "first"}, {ID: "b", Text: "second"}}

	req := Request{Messages: []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "what is spaced repetition?"},
	}}

	resp, err := f.ctx.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if resp.Message != "answer" || !resp.ContextUsed || resp.ToolsUsed || resp.ImageAnalyzed {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(f.tools.calls) != 0 {
		t.Errorf("tools called %d times", len(f.tools.calls))
	}
	if f.retriever.query != "what is spaced repetition?" || f.retriever.limit != ContextPassages {
		t.Errorf("retriever got query %q limit %d", f.retriever.query, f.retriever.limit)
	}
	if f.generator.retrieved != "first\n\nsecond" {
		t.Errorf("retrieved context: got %q", f.generator.retrieved)
	}
	if !reflect.DeepEqual(f.generator.history, req.Messages) {
		t.Errorf("history should pass through unchanged, got %+v", f.generator.history)
	}
}

func TestQueryWebSearchDirective(t *testing.T) {
	f := newFixture(ToolFailureInline)
	f.tools.results["web_search"] = "Paris, Rome"

	query := "List [web_search: q: capitals]"
	resp, err := f.ctx.Query(context.Background(), userRequest("earlier", query))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if !resp.ToolsUsed || resp.ContextUsed {
		t.Errorf("unexpected flags %+v", resp)
	}
	if len(f.tools.calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(f.tools.calls))
	}
	call := f.tools.calls[0]
	if call.name != "web_search" || !call.args.Equal(tools.ArgsOf("q", "capitals")) {
		t.Errorf("unexpected call %s %s", call.name, call.args)
	}

	history := f.generator.history
	if len(history) != 2 || history[0].Content != "earlier" {
		t.Fatalf("unexpected history %+v", history)
	}
	want := query + "\n\n" + "\n\nTool Result (web_search):\nParis, Rome"
	if history[1].Content != want || history[1].Role != RoleUser {
		t.Errorf("final message: got %q, want %q", history[1].Content, want)
	}
	if len(resp.Tools) != 1 || resp.Tools[0].Result != "Paris, Rome" {
		t.Errorf("unexpected outcomes %+v", resp.Tools)
	}
}

func TestQueryZeroPassages(t *testing.T) {
	f := newFixture(ToolFailureInline)

	resp, err := f.ctx.Query(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.ContextUsed {
		t.Error("contextUsed should be false")
	}
	if f.generator.retrieved != "" {
		t.Errorf("context should be empty, got %q", f.generator.retrieved)
	}
	if f.generator.history[0].Content != "hello" {
		t.Errorf("query should be unchanged, got %q", f.generator.history[0].Content)
	}
}

func TestQueryImage(t *testing.T) {
	for _, messages := range [][]string{{"what is this [web_search: q:x]"}, {}} {
		f := newFixture(ToolFailureInline)

		req := userRequest(messages...)
		req.Image = "data:image/png;base64,AAAA"

		resp, err := f.ctx.Query(context.Background(), req)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}

		if !resp.ImageAnalyzed || resp.ContextUsed || resp.ToolsUsed || resp.Message != "answer" {
			t.Errorf("unexpected response %+v", resp)
		}
		if f.generator.generateCalls != 1 || f.generator.describeCalls != 1 {
			t.Errorf("generator calls: generate=%d describe=%d", f.generator.generateCalls, f.generator.describeCalls)
		}
		if f.retriever.calls != 0 || len(f.tools.calls) != 0 {
			t.Errorf("retriever or tools called in image branch")
		}
		if f.generator.image != req.Image {
			t.Errorf("image payload: got %q", f.generator.image)
		}
		if f.generator.retrieved != "" {
			t.Errorf("image branch should pass no context, got %q", f.generator.retrieved)
		}

		history := f.generator.history
		if len(history) != len(messages)+1 {
			t.Fatalf("history length: got %d", len(history))
		}
		last := history[len(history)-1]
		want := "I've shared an image. User shared an image. Image analysis: a bar chart of grades " +
			"Please help me understand how this relates to education and learning."
		if last.Role != RoleUser || last.Content != want {
			t.Errorf("synthetic message: got %+v", last)
		}
	}
}

func TestQueryTwoDirectivesInOrder(t *testing.T) {
	f := newFixture(ToolFailureInline)
	f.tools.results["generate_ui_component"] = "<div>chart</div>"
	f.tools.results["fetch_learning_data"] = "Algebra I: 82%"

	query := "[generate_ui_component: type:chart, title:Sales] and [fetch_learning_data: course:algebra-1]"
	resp, err := f.ctx.Query(context.Background(), userRequest(query))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(resp.Tools) != 2 {
		t.Fatalf("expected two outcomes, got %d", len(resp.Tools))
	}
	if resp.Tools[0].Directive.Name != "generate_ui_component" || resp.Tools[1].Directive.Name != "fetch_learning_data" {
		t.Errorf("outcomes out of order: %+v", resp.Tools)
	}
	if !resp.Tools[0].Directive.Args.Equal(tools.ArgsOf("type", "chart", "title", "Sales")) {
		t.Errorf("unexpected args %s", resp.Tools[0].Directive.Args)
	}

	want := query + "\n\n" +
		"\n\nTool Result (generate_ui_component):\n<div>chart</div>" +
		"\n\nTool Result (fetch_learning_data):\nAlgebra I: 82%"
	if got := f.generator.history[0].Content; got != want {
		t.Errorf("final message: got %q, want %q", got, want)
	}
}

func TestQueryToolFailureInline(t *testing.T) {
	f := newFixture(ToolFailureInline)
	f.tools.errs["web_search"] = errors.New("search is down")
	f.tools.results["fetch_learning_data"] = "ok"

	query := "[web_search: q:x] [fetch_learning_data: course:c]"
	resp, err := f.ctx.Query(context.Background(), userRequest(query))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(f.tools.calls) != 2 {
		t.Fatalf("expected both tools to run, got %d calls", len(f.tools.calls))
	}
	if len(resp.Tools) != 2 || resp.Tools[0].Err == nil || resp.Tools[1].Err != nil {
		t.Errorf("unexpected outcomes %+v", resp.Tools)
	}

	want := query + "\n\n" +
		"\n\nTool Error (web_search):\nsearch is down" +
		"\n\nTool Result (fetch_learning_data):\nok"
	if got := f.generator.history[0].Content; got != want {
		t.Errorf("final message: got %q, want %q", got, want)
	}
}

func TestQueryToolFailureAbort(t *testing.T) {
	f := newFixture(ToolFailureAbort)
	f.tools.errs["web_search"] = errors.New("search is down")

	_, err := f.ctx.Query(context.Background(), userRequest("[web_search: q:x] [fetch_learning_data: course:c]"))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if PublicMessage(err) != "search is down" {
		t.Errorf("public message: got %q", PublicMessage(err))
	}
	if len(f.tools.calls) != 1 {
		t.Errorf("expected abort after first failure, got %d calls", len(f.tools.calls))
	}
	if f.generator.generateCalls != 0 {
		t.Error("generator should not be called after abort")
	}
}

func TestQueryUpstreamFailures(t *testing.T) {
	boom := errors.New("model unavailable")

	tests := []struct {
		name  string
		setup func(f *fixture)
		req   Request
	}{
		{"retriever", func(f *fixture) { f.retriever.err = boom }, userRequest("q")},
		{"generator", func(f *fixture) { f.generator.genErr = boom }, userRequest("q")},
		{"describe image", func(f *fixture) { f.generator.descErr = boom }, Request{Messages: []Message{}, Image: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(ToolFailureInline)
			tt.setup(f)

			resp, err := f.ctx.Query(context.Background(), tt.req)
			if !errors.Is(err, ErrUpstream) || !errors.Is(err, boom) {
				t.Fatalf("expected ErrUpstream wrapping cause, got %v", err)
			}
			if Status(err) != http.StatusInternalServerError {
				t.Errorf("status: got %d", Status(err))
			}
			if PublicMessage(err) != "model unavailable" {
				t.Errorf("public message: got %q", PublicMessage(err))
			}
			if resp.Message != "" {
				t.Errorf("partial response returned: %+v", resp)
			}
		})
	}
}

func TestQueryRecoversPanic(t *testing.T) {
	f := newFixture(ToolFailureInline)
	f.generator.panicMsg = "nil map"

	_, err := f.ctx.Query(context.Background(), userRequest("q"))
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if Status(err) != http.StatusInternalServerError || PublicMessage(err) != "nil map" {
		t.Errorf("unexpected status %d message %q", Status(err), PublicMessage(err))
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		image string
		count int
	}{
		{"text", `{"messages":[{"role":"user","content":"hi"}]}`, "", 1},
		{"string image", `{"messages":[],"image":"data:image/png;base64,AAAA"}`, "data:image/png;base64,AAAA", 0},
		{"null image", `{"messages":[],"image":null}`, "", 0},
		{"empty image", `{"messages":[],"image":""}`, "", 0},
		{"false image", `{"messages":[],"image":false}`, "", 0},
		{"object image", `{"messages":[],"image":{"url":"x"}}`, `{"url":"x"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}
			if req.Messages == nil {
				t.Fatal("messages should be non-nil")
			}
			if len(req.Messages) != tt.count {
				t.Errorf("messages: got %d, want %d", len(req.Messages), tt.count)
			}
			if req.Image != tt.image {
				t.Errorf("image: got %q, want %q", req.Image, tt.image)
			}
		})
	}
}

func TestPublicMessageFallback(t *testing.T) {
	if got := PublicMessage(&Error{Kind: ErrInternal}); got != "Internal server error" {
		t.Errorf("got %q", got)
	}
	if got := PublicMessage(errors.New("plain")); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestParseToolFailurePolicy(t *testing.T) {
	for input, want := range map[string]ToolFailurePolicy{"": ToolFailureInline, "inline": ToolFailureInline, "abort": ToolFailureAbort} {
		got, err := ParseToolFailurePolicy(input)
		if err != nil || got != want {
			t.Errorf("ParseToolFailurePolicy(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseToolFailurePolicy("retry"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
