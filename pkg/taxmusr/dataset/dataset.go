// Package dataset defines the persisted case and result records and their
// JSONL serialization.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/steuerlab/taxmusr/internal/llm"
)

// Metadata records the generation parameters of a case.
type Metadata struct {
	Domain      string  `json:"domain"`
	MaxDepth    int     `json:"max_depth"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Seed        int64   `json:"seed"`
}

// TreeNode is one serialized reasoning graph node. The full tree persists
// alongside the linearized trace so the derivation structure survives a
// round trip through the file.
type TreeNode struct {
	ID          string            `json:"id"`
	Predicate   string            `json:"predicate"`
	Vars        map[string]string `json:"vars,omitempty"`
	Value       string            `json:"value,omitempty"`
	Tag         string            `json:"tag"`
	Text        string            `json:"text"`
	Rule        string            `json:"rule,omitempty"`
	Antecedents []string          `json:"antecedents,omitempty"`
	Root        bool              `json:"root,omitempty"`
}

// Case is the persisted unit of generation. Immutable once written.
type Case struct {
	ID              string     `json:"id"`
	Narrative       string     `json:"narrative"`
	UnderlyingFacts []string   `json:"underlying_facts"`
	RuleSignals     []string   `json:"rule_signals"`
	ReasoningTrace  []string   `json:"reasoning_trace"`
	ReasoningTree   []TreeNode `json:"reasoning_tree,omitempty"`
	Question        string     `json:"question"`
	Answer          string     `json:"answer"`
	Options         []string   `json:"options"`
	Metadata        Metadata   `json:"metadata"`
}

// Prediction is one workflow run's output over a case.
type Prediction struct {
	PredictedAnswer string    `json:"predicted_answer"`
	PredictedTrace  string    `json:"predicted_trace"`
	TokenUsage      llm.Usage `json:"token_usage"`
	Verdict         string    `json:"verdict"`
}

// Result is a case augmented with its prediction.
type Result struct {
	Case
	Prediction Prediction `json:"prediction"`
}

// ReadCases loads a dataset file. A .jsonl file holds one case per line; a
// .json file holds an array of cases.
func ReadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var cases []Case
		if err := json.NewDecoder(f).Decode(&cases); err != nil {
			return nil, fmt.Errorf("dataset: decode %s: %w", path, err)
		}
		return cases, nil
	}
	return decodeLines(f, path)
}

func decodeLines(r io.Reader, path string) ([]Case, error) {
	var cases []Case
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("dataset: %s line %d: %w", path, line, err)
		}
		cases = append(cases, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	return cases, nil
}

// Writer appends records to a JSONL stream, one per line.
type Writer struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
}

// OpenWriter opens path for appending, creating parent directories as needed.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return &Writer{w: f, c: f, enc: json.NewEncoder(f)}, nil
}

// NewWriter wraps an existing stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: json.NewEncoder(w)}
}

// Write appends one record. The record may be a Case, a Result, or any
// JSON-encodable value.
func (w *Writer) Write(record any) error {
	if err := w.enc.Encode(record); err != nil {
		return fmt.Errorf("dataset: encode: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}
