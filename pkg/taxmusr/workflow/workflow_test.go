package workflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func fakeClient(t *testing.T, reply string, inspect func(body string)) *llm.Client {
	t.Helper()
	return &llm.Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				body, _ := io.ReadAll(req.Body)
				if inspect != nil {
					inspect(string(body))
				}
				payload := `{"choices":[{"message":{"role":"assistant","content":` + jsonString(reply) + `}}],` +
					`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(payload)),
					Header:     make(http.Header),
				}
			}),
		},
	}
}

func jsonString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func TestBaselineRunParsesAnswer(t *testing.T) {
	wf := &Baseline{
		Client: fakeClient(t, "The couple earns unevenly.\nANSWER: joint_assessment", nil),
		CoT:    true,
	}
	out, err := wf.Run(context.Background(), "story", "question?", []string{"joint_assessment", "individual_assessment"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Answer != "joint_assessment" {
		t.Errorf("Answer = %q", out.Answer)
	}
	if out.Reasoning != "The couple earns unevenly." {
		t.Errorf("Reasoning = %q", out.Reasoning)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestBaselineRunLastMarkerWins(t *testing.T) {
	reply := "If forced I would say ANSWER: flatrate, but on reflection:\nANSWER: pro-rata"
	wf := &Baseline{Client: fakeClient(t, reply, nil)}
	out, err := wf.Run(context.Background(), "story", "q", []string{"pro-rata", "flatrate"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Answer != "pro-rata" {
		t.Errorf("Answer = %q, want pro-rata", out.Answer)
	}
}

func TestBaselineRunMalformed(t *testing.T) {
	wf := &Baseline{Client: fakeClient(t, "I cannot decide.", nil)}
	out, err := wf.Run(context.Background(), "story", "q", []string{"a", "b"})
	if !errors.Is(err, internalerr.ErrMalformedPrediction) {
		t.Fatalf("err = %v, want ErrMalformedPrediction", err)
	}
	if out.Reasoning != "I cannot decide." {
		t.Errorf("raw reply should be preserved as reasoning, got %q", out.Reasoning)
	}
}

func TestBaselinePromptContents(t *testing.T) {
	var seen string
	wf := &Baseline{
		Client: fakeClient(t, "ANSWER: a", func(body string) { seen = body }),
		CoT:    true,
		Examples: []Example{
			{Narrative: "example story", Question: "example question", Answer: "a"},
		},
	}
	if _, err := wf.Run(context.Background(), "the narrative", "the question", []string{"a", "b"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{
		"Here are examples:", "example story", "the narrative",
		"Pick one of the following choices: a, b.",
		"Explain your reasoning step by step",
	} {
		if !strings.Contains(seen, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestWorkflowNames(t *testing.T) {
	if n := (&Baseline{CoT: true}).Name(); n != "cot" {
		t.Errorf("Name = %q, want cot", n)
	}
	if n := (&Baseline{Examples: []Example{{}}}).Name(); n != "few_shot" {
		t.Errorf("Name = %q, want few_shot", n)
	}
	if n := (&Baseline{}).Name(); n != "zero_shot" {
		t.Errorf("Name = %q, want zero_shot", n)
	}
}
