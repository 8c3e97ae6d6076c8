// chat request orchestration: retrieval, inline tools and generation

package backai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/tools"
)

// ContextPassages is the number of passages retrieved per query.
const ContextPassages = 3

type Passage struct {
	ID       string
	Text     string
	Distance float64
}

type Generator interface {
	// Generate completes history. Non-empty retrieved text is made available
	// to the model ahead of generation.
	Generate(ctx context.Context, history []Message, retrieved string) (string, error)
	// DescribeImage takes a data URL or bare base64 payload.
	DescribeImage(ctx context.Context, image string) (string, error)
}

type Retriever interface {
	// Search returns at most limit passages, most relevant first.
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}

type ToolExecutor interface {
	Execute(ctx context.Context, name string, args tools.Args) (string, error)
}

type ToolFailurePolicy int

const (
	// ToolFailureInline notes the failure among the tool results and keeps
	// going.
	ToolFailureInline ToolFailurePolicy = iota
	// ToolFailureAbort fails the request on the first tool failure.
	ToolFailureAbort
)

func ParseToolFailurePolicy(s string) (ToolFailurePolicy, error) {
	switch s {
	case "", "inline":
		return ToolFailureInline, nil
	case "abort":
		return ToolFailureAbort, nil
	}
	return 0, fmt.Errorf("unknown tool failure policy %q", s)
}

func (p ToolFailurePolicy) String() string {
	if p == ToolFailureAbort {
		return "abort"
	}
	return "inline"
}

type ToolOutcome struct {
	Directive Directive
	Result    string
	Err       error
}

type Response struct {
	Message       string
	ImageAnalyzed bool
	ContextUsed   bool
	ToolsUsed     bool
	Tools         []ToolOutcome
}

type Ctx struct {
	generator   Generator
	retriever   Retriever
	tools       ToolExecutor
	toolFailure ToolFailurePolicy
}

func NewCtx(generator Generator, retriever Retriever, tools ToolExecutor, toolFailure ToolFailurePolicy) *Ctx {
	util.Assert(generator != nil, "NewCtx nil generator")
	util.Assert(retriever != nil, "NewCtx nil retriever")
	util.Assert(tools != nil, "NewCtx nil tools")

	return &Ctx{
		generator:   generator,
		retriever:   retriever,
		tools:       tools,
		toolFailure: toolFailure,
	}
}

func imagePrompt(description string) string {
	return fmt.Sprintf("I've shared an image. User shared an image. Image analysis: %s "+
		"Please help me understand how this relates to education and learning.", description)
}

func (c *Ctx) queryImage(ctx context.Context, req Request) (Response, error) {
	description, err := c.generator.DescribeImage(ctx, req.Image)
	if err != nil {
		return Response{}, upstream(err)
	}

	history := make([]Message, 0, len(req.Messages)+1)
	history = append(history, req.Messages...)
	history = append(history, Message{Role: RoleUser, Content: imagePrompt(description)})

	message, err := c.generator.Generate(ctx, history, "")
	if err != nil {
		return Response{}, upstream(err)
	}

	return Response{Message: message, ImageAnalyzed: true}, nil
}

func joinPassages(passages []Passage) string {
	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Text
	}
	return strings.Join(texts, "\n\n")
}

// runTools executes directives in order and returns the text to append to
// the user's query.
func (c *Ctx) runTools(ctx context.Context, directives []Directive) (string, []ToolOutcome, error) {
	log := zerolog.Ctx(ctx)

	var results strings.Builder
	outcomes := make([]ToolOutcome, 0, len(directives))

	for _, directive := range directives {
		log.Debug().Msgf("tool %s %s", directive.Name, directive.Args)

		result, err := c.tools.Execute(ctx, directive.Name, directive.Args)
		if err != nil {
			if c.toolFailure == ToolFailureAbort {
				return "", nil, upstream(err)
			}

			log.Warn().Err(err).Msgf("tool %s failed", directive.Name)
			fmt.Fprintf(&results, "\n\nTool Error (%s):\n%s", directive.Name, err.Error())
			outcomes = append(outcomes, ToolOutcome{Directive: directive, Err: err})
			continue
		}

		fmt.Fprintf(&results, "\n\nTool Result (%s):\n%s", directive.Name, result)
		outcomes = append(outcomes, ToolOutcome{Directive: directive, Result: result})
	}

	return results.String(), outcomes, nil
}

func (c *Ctx) queryText(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, invalidRequest("Messages array must not be empty")
	}

	last := len(req.Messages) - 1
	query := req.Messages[last].Content

	passages, err := c.retriever.Search(ctx, query, ContextPassages)
	if err != nil {
		return Response{}, upstream(err)
	}
	if len(passages) > ContextPassages {
		passages = passages[:ContextPassages]
	}

	directives := ParseDirectives(query)

	toolResults, outcomes, err := c.runTools(ctx, directives)
	if err != nil {
		return Response{}, err
	}

	content := query
	if toolResults != "" {
		content = query + "\n\n" + toolResults
	}

	history := make([]Message, 0, len(req.Messages))
	history = append(history, req.Messages[:last]...)
	history = append(history, Message{Role: RoleUser, Content: content})

	message, err := c.generator.Generate(ctx, history, joinPassages(passages))
	if err != nil {
		return Response{}, upstream(err)
	}

	return Response{
		Message:     message,
		ContextUsed: len(passages) > 0,
		ToolsUsed:   len(directives) > 0,
		Tools:       outcomes,
	}, nil
}

// Query answers one chat turn. A request with an image is answered from the
// image description alone; otherwise the last message is augmented with
// retrieved passages and inline tool results.
func (c *Ctx) Query(ctx context.Context, req Request) (resp Response, err error) {
	util.Assert(c != nil, "Query nil ctx")
	log := zerolog.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			resp, err = Response{}, internal(cause.Error(), cause)
		}
		if err != nil {
			log.Error().Err(err).Msg("chat query failed")
		}
	}()

	if req.Messages == nil {
		return Response{}, invalidRequest("Messages array is required")
	}

	if req.Image != "" {
		return c.queryImage(ctx, req)
	}

	return c.queryText(ctx, req)
}
