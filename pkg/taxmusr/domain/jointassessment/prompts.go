package jointassessment

import (
	"fmt"
	"strings"
)

// narrativePrompt instructs the narrator model to turn the story facts into
// a short first-person story without leaking the answer terminology.
func narrativePrompt(storyFacts []string) string {
	var b strings.Builder
	b.WriteString("Write a first-person mini story about a couple's finances in Germany given a list of facts.\n")
	b.WriteString("Keep the story coherent and realistic and avoid tax jargon. Only output the story without any additional commentary.\n")
	b.WriteString("The story must clearly imply the following facts without stating them like a list:\n\n")
	for _, f := range storyFacts {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nMust include:\n")
	b.WriteString("- A natural sentence where the narrator states their income and their partner's income. The numbers must be consistent with the facts.\n")
	b.WriteString("\nCritical constraints:\n")
	b.WriteString("- Never mention terms like joint assessment, separate assessment or individual assessment.\n")
	b.WriteString("- Never explain how taxes work or are calculated.\n")
	return b.String()
}
