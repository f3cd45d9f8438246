package validate

import (
	"strings"
	"unicode"
)

// Verdict classifies a prediction against the gold answer and trace.
type Verdict string

const (
	// VerdictCorrect: answer matches and the trace covers enough of the
	// gold reasoning path.
	VerdictCorrect Verdict = "correct"
	// VerdictIncorrectAnswer: answer does not match, trace irrelevant.
	VerdictIncorrectAnswer Verdict = "incorrect_answer"
	// VerdictCorrectAnswerWrongPath: answer matches but the trace match
	// score fell below the threshold.
	VerdictCorrectAnswerWrongPath Verdict = "correct_answer_wrong_path"
	// VerdictUnparseable: model output yielded no answer.
	VerdictUnparseable Verdict = "unparseable"
)

// TraceMatcher scores how much of the gold reasoning steps a free-form model
// trace covers. Implementations are heuristic; the engine only depends on
// the score.
type TraceMatcher interface {
	// Score returns the fraction of gold steps matched in the trace,
	// in [0, 1].
	Score(goldSteps []string, trace string) float64
}

// JudgeConfig carries the evaluation-time knobs.
type JudgeConfig struct {
	// PathThreshold is the minimum trace match score for a matching
	// answer to count as fully correct.
	PathThreshold float64
	// Matcher scores the trace; nil selects the keyword matcher.
	Matcher TraceMatcher
}

// Judgement is the outcome of judging one prediction.
type Judgement struct {
	Verdict    Verdict
	TraceScore float64
}

// Judge compares a predicted answer and trace to the gold answer and gold
// reasoning steps. Answers are compared after normalization.
func Judge(goldAnswer string, goldSteps []string, predAnswer, predTrace string, cfg JudgeConfig) Judgement {
	if strings.TrimSpace(predAnswer) == "" {
		return Judgement{Verdict: VerdictUnparseable}
	}
	if NormalizeAnswer(predAnswer) != NormalizeAnswer(goldAnswer) {
		return Judgement{Verdict: VerdictIncorrectAnswer}
	}

	matcher := cfg.Matcher
	if matcher == nil {
		matcher = KeywordMatcher{}
	}
	score := matcher.Score(goldSteps, predTrace)
	if len(goldSteps) > 0 && score < cfg.PathThreshold {
		return Judgement{Verdict: VerdictCorrectAnswerWrongPath, TraceScore: score}
	}
	return Judgement{Verdict: VerdictCorrect, TraceScore: score}
}

// NormalizeAnswer lowercases, trims whitespace and strips trailing
// punctuation and quotes, so "Joint_Assessment." equals "joint_assessment".
func NormalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, `."'()`+" \t")
}

// KeywordMatcher is the default trace heuristic: a gold step counts as
// matched when at least half of its keywords occur in the trace.
type KeywordMatcher struct{}

// Score implements TraceMatcher.
func (KeywordMatcher) Score(goldSteps []string, trace string) float64 {
	if len(goldSteps) == 0 {
		return 1
	}
	traceTokens := make(map[string]bool)
	for _, t := range tokenize(trace) {
		traceTokens[t] = true
	}

	matched := 0
	for _, step := range goldSteps {
		keywords := tokenize(step)
		if len(keywords) == 0 {
			continue
		}
		hits := 0
		for _, k := range keywords {
			if traceTokens[k] {
				hits++
			}
		}
		if float64(hits)/float64(len(keywords)) >= 0.5 {
			matched++
		}
	}
	return float64(matched) / float64(len(goldSteps))
}

// stopwords drops function words that carry no reasoning content.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"for": true, "of": true, "to": true, "and": true, "or": true, "in": true,
	"on": true, "at": true, "by": true, "with": true, "that": true,
	"this": true, "it": true, "be": true, "has": true, "have": true,
	"their": true, "they": true, "should": true, "not": true,
}

// tokenize splits text into lowercase alphanumeric tokens, dropping
// stopwords and one-character fragments.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := current.String()
		current.Reset()
		if len(word) <= 1 || stopwords[word] {
			return
		}
		tokens = append(tokens, word)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
