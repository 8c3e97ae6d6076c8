package data

import (
	"embed"
	"io/fs"
)

//go:embed prompt.txt
var SystemPrompt string

//go:embed describe.txt
var DescribePrompt string

//go:embed learning.json
var LearningData []byte

//go:embed corpus/*.md
var corpusFS embed.FS

// Corpus is the built-in knowledge base, rooted at the corpus directory.
func Corpus() fs.FS {
	sub, err := fs.Sub(corpusFS, "corpus")
	if err != nil {
		panic(err)
	}
	return sub
}

// PromptWithContext appends retrieved reference text to the system prompt.
func PromptWithContext(retrieved string) string {
	if retrieved == "" {
		return SystemPrompt
	}
	return SystemPrompt + "\nUse the following context from the knowledge base when it is relevant:\n\n" + retrieved
}
