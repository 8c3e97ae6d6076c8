// splits markdown documents into retrievable passages

package corpus

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxPassageLen bounds passage size; longer sections are split at blank
// lines.
const MaxPassageLen = 1500

// sections start at headings of this level or higher
const sectionLevel = 2

type Passage struct {
	ID     string
	Source string
	Title  string
	Text   string
}

var md = goldmark.New()

func lineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}

func headingText(h *ast.Heading, src []byte) string {
	var buf bytes.Buffer
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(src))
	}
	return strings.TrimSpace(buf.String())
}

type section struct {
	title string
	start int
}

func sections(name string, src []byte) []section {
	doc := md.Parser().Parse(text.NewReader(src))

	result := []section{{title: name, start: 0}}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > sectionLevel || h.Lines().Len() == 0 {
			continue
		}
		result = append(result, section{
			title: headingText(h, src),
			start: lineStart(src, h.Lines().At(0).Start),
		})
	}

	return result
}

// chunk splits text at blank lines into pieces of at most MaxPassageLen bytes,
// except for single paragraphs that are longer on their own.
func chunk(body string) []string {
	if len(body) <= MaxPassageLen {
		return []string{body}
	}

	var chunks []string
	var current strings.Builder
	for _, paragraph := range strings.Split(body, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(paragraph) > MaxPassageLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// Split cuts a markdown document into passages at level 1 and 2 headings.
func Split(name string, src []byte) []Passage {
	secs := sections(name, src)

	var passages []Passage
	for i, sec := range secs {
		end := len(src)
		if i+1 < len(secs) {
			end = secs[i+1].start
		}

		body := strings.TrimSpace(string(src[sec.start:end]))
		if body == "" {
			continue
		}

		for _, piece := range chunk(body) {
			passages = append(passages, Passage{
				ID:     fmt.Sprintf("%s#%d", name, len(passages)),
				Source: name,
				Title:  sec.title,
				Text:   piece,
			})
		}
	}

	return passages
}

// Load splits every .md file under fsys, in path order.
func Load(fsys fs.FS) ([]Passage, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".md" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sort.Strings(paths)

	var passages []Passage
	for _, p := range paths {
		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		passages = append(passages, Split(p, src)...)
	}

	return passages, nil
}
