package policy

import (
	"strings"
	"testing"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng
}

func TestCheckAcceptsCleanNetlist(t *testing.T) {
	eng := newEngine(t)
	netlist := `* RC lowpass
V1 in 0 AC 1
R1 in out 1k
C1 out 0 1u
.ac dec 10 1 100k
.end
`
	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", result.Violations)
	}
	if result.Summary.TotalViolations != 0 {
		t.Fatalf("expected empty summary, got %+v", result.Summary)
	}
}

func TestCheckFlagsDisallowedDirective(t *testing.T) {
	eng := newEngine(t)
	netlist := "* t\nR1 in out 1k\n.shell rm -rf /\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", result.Violations)
	}
	v := result.Violations[0]
	if v.Rule != "disallowed-directive" || v.Severity != "error" {
		t.Fatalf("unexpected violation: %+v", v)
	}
	if v.Line != 3 {
		t.Fatalf("expected violation on line 3, got %d", v.Line)
	}
}

func TestCheckFlagsIncludesUnlessAllowed(t *testing.T) {
	eng := newEngine(t)
	netlist := "* t\n.include models.lib\nR1 in out 1k\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Rule != "include-not-allowed" {
		t.Fatalf("expected include-not-allowed, got %+v", result.Violations)
	}

	result, err = eng.Check(netlist, true)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected includes permitted, got %+v", result.Violations)
	}
}

func TestCheckFlagsBackticks(t *testing.T) {
	eng := newEngine(t)
	netlist := "* t\nR1 in out `whoami`\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Rule != "backtick-execution" {
		t.Fatalf("expected backtick-execution, got %+v", result.Violations)
	}
}

func TestCheckIgnoresComments(t *testing.T) {
	eng := newEngine(t)
	netlist := "* t\n* try .shell here, and a `backtick`\nR1 in out 1k\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected comments exempt, got %+v", result.Violations)
	}
}

func TestCheckFoldsContinuationsBeforeEvaluating(t *testing.T) {
	eng := newEngine(t)
	// The directive is split across a continuation; folded it is still
	// an include.
	netlist := "* t\n.include\n+ models.lib\nR1 in out 1k\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Rule != "include-not-allowed" {
		t.Fatalf("expected folded include flagged, got %+v", result.Violations)
	}
}

func TestCheckSummaryCounts(t *testing.T) {
	eng := newEngine(t)
	netlist := "* t\n.shell ls\n.include x.lib\nR1 in out `id`\n.end\n"

	result, err := eng.Check(netlist, false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Summary.TotalViolations != 3 {
		t.Fatalf("expected 3 violations, got %+v", result.Summary)
	}
	if result.Summary.Errors != 3 || result.Summary.Warnings != 0 {
		t.Fatalf("unexpected severity counts: %+v", result.Summary)
	}
}

func TestCheckRejectsOversizeNetlist(t *testing.T) {
	eng := newEngine(t)
	big := "* t\n" + strings.Repeat("R1 in out 1k\n", MaxNetlistSize/10)

	if _, err := eng.Check(big, false); err == nil {
		t.Fatal("expected oversize netlist rejected, got nil")
	}
}

func TestCheckHonorsConfiguredSizeLimit(t *testing.T) {
	eng := newEngine(t)
	if eng.MaxSize != MaxNetlistSize {
		t.Fatalf("expected default limit %d, got %d", MaxNetlistSize, eng.MaxSize)
	}

	netlist := "* t\nR1 in out 1k\n.end\n"
	eng.MaxSize = 10
	if _, err := eng.Check(netlist, false); err == nil {
		t.Fatal("expected lowered limit enforced, got nil")
	}

	eng.MaxSize = MaxNetlistSize
	if _, err := eng.Check(netlist, false); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
}

func TestValidateComponentValue(t *testing.T) {
	valid := []string{"1k", "10u", "2N2222", "{RVAL}", "DC 5", "SIN(0 1 1k)", "W=1u L=0.5u"}
	for _, v := range valid {
		if err := ValidateComponentValue(v); err != nil {
			t.Fatalf("ValidateComponentValue(%q) = %v, expected nil", v, err)
		}
	}

	invalid := []string{"", "1k\n.shell ls", "1k;ls", "`id`", ".param x=1", "1k$"}
	for _, v := range invalid {
		if err := ValidateComponentValue(v); err == nil {
			t.Fatalf("ValidateComponentValue(%q) = nil, expected error", v)
		}
	}
}

func TestValidateFilename(t *testing.T) {
	if err := ValidateFilename("models.lib"); err != nil {
		t.Fatalf("expected models.lib accepted: %v", err)
	}
	for _, name := range []string{"", "../etc/passwd", "a/b.lib", `a\b.lib`} {
		if err := ValidateFilename(name); err == nil {
			t.Fatalf("ValidateFilename(%q) = nil, expected error", name)
		}
	}
}
