// Package policy evaluates netlist safety rules before any netlist is
// accepted for composition or handed to the simulator. The rules
// themselves live in embedded rego modules so the allowlist can be read
// and reviewed without touching Go code.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed rules/*.rego
var rulesFS embed.FS

// MaxNetlistSize is the default cap on accepted netlist text, 1 MB.
const MaxNetlistSize = 1_000_000

// Engine evaluates safety policies against netlist line facts.
type Engine struct {
	queries map[string]rego.PreparedEvalQuery

	// MaxSize caps accepted netlist text in bytes. New sets it to
	// MaxNetlistSize; callers may adjust it before the first Check.
	MaxSize int
}

// Violation is one policy finding.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results.
type Result struct {
	Violations []Violation
	Summary    Summary
}

// Summary provides aggregate counts.
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
}

// Input is the fact table passed to the rego rules: one row per logical
// netlist line, with continuations already folded in.
type Input struct {
	Lines         []LineFact `json:"lines"`
	AllowIncludes bool       `json:"allow_includes"`
}

// LineFact describes one logical netlist line.
type LineFact struct {
	Line      int    `json:"line"`
	Text      string `json:"text"`
	Directive string `json:"directive"` // lower-cased dot-directive name, "" otherwise
	Comment   bool   `json:"comment"`
}

// New creates a policy engine from the embedded rule modules.
func New() (*Engine, error) {
	files, err := fs.Glob(rulesFS, "rules/*.rego")
	if err != nil {
		return nil, fmt.Errorf("finding policy modules: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no embedded policy modules")
	}

	var modules []func(*rego.Rego)
	for _, f := range files {
		content, err := rulesFS.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		modules = append(modules, rego.Module(f, string(content)))
	}

	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
		MaxSize: MaxNetlistSize,
	}

	opts := append(modules, rego.Query("data.spice.safety.all_violations"))
	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing violations query: %w", err)
	}
	engine.queries["violations"] = query

	opts = append(modules, rego.Query("data.spice.safety.summary"))
	query, err = rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing summary query: %w", err)
	}
	engine.queries["summary"] = query

	return engine, nil
}

// Check validates raw netlist text. Oversize input is rejected before
// any rule runs; everything else is the rego rules' business.
func (e *Engine) Check(netlist string, allowIncludes bool) (*Result, error) {
	if len(netlist) > e.MaxSize {
		return nil, fmt.Errorf("netlist too large: %d bytes (max %d)", len(netlist), e.MaxSize)
	}
	return e.Evaluate(BuildInput(netlist, allowIncludes))
}

// BuildInput folds continuation lines and extracts per-line facts.
func BuildInput(netlist string, allowIncludes bool) Input {
	raw := strings.Split(netlist, "\n")
	var lines []LineFact
	for i, l := range raw {
		stripped := strings.TrimSpace(strings.TrimRight(l, "\r"))
		if strings.HasPrefix(stripped, "+") && len(lines) > 0 {
			prev := &lines[len(lines)-1]
			prev.Text += " " + strings.TrimSpace(strings.TrimPrefix(stripped, "+"))
			continue
		}
		fact := LineFact{Line: i + 1, Text: stripped}
		if strings.HasPrefix(stripped, "*") {
			fact.Comment = true
		} else if strings.HasPrefix(stripped, ".") {
			fields := strings.Fields(stripped)
			fact.Directive = strings.ToLower(strings.TrimPrefix(fields[0], "."))
		}
		lines = append(lines, fact)
	}
	return Input{Lines: lines, AllowIncludes: allowIncludes}
}

// Evaluate runs the policies against the input facts.
func (e *Engine) Evaluate(input Input) (*Result, error) {
	ctx := context.Background()

	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					Line:     getInt(vmap, "line"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
			}
		}
	}

	return result, nil
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		if f, ok := v.(json.Number); ok {
			if n, err := f.Int64(); err == nil {
				return int(n)
			}
		}
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 0
}
