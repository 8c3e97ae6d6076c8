package backai

import (
	"strings"

	"github.com/vasilisp/edurag/pkg/tools"
)

// Directive is an inline tool request of the form
//
//	[name: key1:value1, key2:value2]
//
// There is no escaping: a ']' inside a value ends the directive early.
type Directive struct {
	Name string
	Args tools.Args
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// scanDirective tries to read a directive starting at text[start], which must
// be '['. It returns the directive and the index just past its ']'. On failure
// the index is where scanning resumes: len(text) when no ']' follows, since no
// later candidate can be terminated either.
func scanDirective(text string, start int) (Directive, int, bool) {
	i := start + 1

	nameStart := i
	if i >= len(text) || !isNameStart(text[i]) {
		return Directive{}, start + 1, false
	}
	for i < len(text) && isNameChar(text[i]) {
		i++
	}
	name := text[nameStart:i]

	if i >= len(text) || text[i] != ':' {
		return Directive{}, start + 1, false
	}
	i++

	argStart := i
	for i < len(text) && text[i] != ']' {
		i++
	}
	if i >= len(text) {
		return Directive{}, len(text), false
	}
	if i == argStart {
		return Directive{}, start + 1, false
	}

	return Directive{Name: name, Args: parseArgs(text[argStart:i])}, i + 1, true
}

// parseArgs splits "k1:v1, k2:v2" into ordered pairs. Pieces without a ':'
// or with an empty key are dropped. A repeated key keeps its last value.
func parseArgs(argList string) tools.Args {
	args := tools.NewArgs()

	for _, piece := range strings.Split(argList, ",") {
		key, value, ok := strings.Cut(piece, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		args.Set(key, strings.TrimSpace(value))
	}

	return args
}

// ParseDirectives extracts all directives from text, left to right. Malformed
// candidates are skipped.
func ParseDirectives(text string) []Directive {
	var directives []Directive

	for i := 0; i < len(text); {
		if text[i] != '[' {
			i++
			continue
		}

		directive, next, ok := scanDirective(text, i)
		if ok {
			directives = append(directives, directive)
		}
		i = next
	}

	return directives
}
