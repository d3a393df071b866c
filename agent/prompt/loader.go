package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/attendant.txt
	attendantRaw string

	//go:embed template/summarizer.txt
	summarizerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Attendant  string
	Summarizer string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Attendant:  strings.TrimSpace(attendantRaw),
		Summarizer: strings.TrimSpace(summarizerRaw),
	}
}
