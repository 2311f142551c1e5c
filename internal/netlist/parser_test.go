package netlist

import (
	"errors"
	"strings"
	"testing"
)

const rcLowpass = `* RC lowpass
V1 in 0 AC 1
R1 in out 1k
C1 out 0 1u
.end
`

func TestParseClassifiesStatements(t *testing.T) {
	c, err := Parse(rcLowpass)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	kinds := []Kind{KindTitle, KindComponent, KindComponent, KindComponent, KindEnd}
	if len(c.Statements) != len(kinds) {
		t.Fatalf("expected %d statements, got %d", len(kinds), len(c.Statements))
	}
	for i, want := range kinds {
		if c.Statements[i].Kind != want {
			t.Fatalf("statement %d: expected kind %s, got %s", i, want, c.Statements[i].Kind)
		}
	}

	r1 := c.Statements[2]
	if r1.Name != "R1" || r1.Letter != 'R' {
		t.Fatalf("expected component R1, got %q (letter %c)", r1.Name, r1.Letter)
	}
	if len(r1.Nodes) != 2 || r1.Nodes[0] != "in" || r1.Nodes[1] != "out" {
		t.Fatalf("expected nodes [in out], got %v", r1.Nodes)
	}
	if r1.Value != "1k" {
		t.Fatalf("expected value 1k, got %q", r1.Value)
	}
}

func TestParseFirstNonBlankLineIsAlwaysTitle(t *testing.T) {
	// Even a line shaped like a component is the title when it comes first.
	text := "R1 in out 1k\nC1 out 0 1u\n.end\n"
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Statements[0].Kind != KindTitle {
		t.Fatalf("expected title, got %s", c.Statements[0].Kind)
	}
	if c.Statements[0].Raw != "R1 in out 1k" {
		t.Fatalf("expected title text preserved, got %q", c.Statements[0].Raw)
	}
	if len(c.Components()) != 1 {
		t.Fatalf("expected 1 component after title, got %d", len(c.Components()))
	}
}

func TestParseLeadingBlanksDroppedBeforeTitle(t *testing.T) {
	text := "\n\n* title\nR1 in out 1k\n.end\n"
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Statements[0].Kind != KindTitle || c.Statements[0].Raw != "* title" {
		t.Fatalf("expected comment-shaped title, got %s %q", c.Statements[0].Kind, c.Statements[0].Raw)
	}
	if c.Statements[0].Line != 3 {
		t.Fatalf("expected title on line 3, got %d", c.Statements[0].Line)
	}
}

func TestParseFoldsContinuationLines(t *testing.T) {
	text := "* title\nE1 out 0\n+ in 0\n+ 10\n.end\n"
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	comps := c.Components()
	if len(comps) != 1 {
		t.Fatalf("expected 1 component, got %d", len(comps))
	}
	e1 := comps[0]
	if len(e1.Nodes) != 4 {
		t.Fatalf("expected 4 nodes on folded E line, got %v", e1.Nodes)
	}
	if e1.Value != "10" {
		t.Fatalf("expected value 10, got %q", e1.Value)
	}
	if e1.Line != 2 {
		t.Fatalf("expected folded statement on line 2, got %d", e1.Line)
	}
}

func TestParseNodeCounts(t *testing.T) {
	tests := []struct {
		line  string
		nodes int
		value string
	}{
		{"R1 a b 1k", 2, "1k"},
		{"C1 a b 1u", 2, "1u"},
		{"L1 a b 1m", 2, "1m"},
		{"V1 a b DC 5", 2, "DC 5"},
		{"Q1 c b e 2N2222", 3, "2N2222"},
		{"J1 d g s JMODEL", 3, "JMODEL"},
		{"M1 d g s b NMOS W=1u L=1u", 4, "NMOS W=1u L=1u"},
		{"E1 p n cp cn 10", 4, "10"},
		{"F1 p n V1 2", 2, "V1 2"},
		{"H1 p n V1 2", 2, "V1 2"},
		{"X1 a b c myfilter", 3, "myfilter"},
	}
	for _, tt := range tests {
		c, err := Parse("* t\n" + tt.line + "\n.end\n")
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.line, err)
		}
		comps := c.Components()
		if len(comps) != 1 {
			t.Fatalf("Parse(%q): expected 1 component, got %d", tt.line, len(comps))
		}
		if len(comps[0].Nodes) != tt.nodes {
			t.Fatalf("Parse(%q): expected %d nodes, got %v", tt.line, tt.nodes, comps[0].Nodes)
		}
		if comps[0].Value != tt.value {
			t.Fatalf("Parse(%q): expected value %q, got %q", tt.line, tt.value, comps[0].Value)
		}
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"empty", "", 1},
		{"blank only", "\n\n\n", 1},
		{"missing terminator", "* t\nR1 a b 1k\n", 3},
		{"statement after end", "* t\nR1 a b 1k\n.end\nC1 a 0 1u\n", 4},
		{"too few nodes", "* t\nQ1 c b MODEL\n.end\n", 2},
		{"unknown type", "* t\nW1 a b 1k\n.end\n", 2},
		{"bare type letter", "* t\nR a b 1k\n.end\n", 2},
		{"duplicate name", "* t\nR1 a b 1k\nR1 b c 2k\n.end\n", 3},
		{"orphan continuation", "+ R1 a b 1k\n.end\n", 1},
		{"subckt without name", "* t\n.subckt\n.ends\n.end\n", 2},
		{"ends without subckt", "* t\n.ends\n.end\n", 2},
		{"unterminated subckt", "* t\n.subckt f a b\nR1 a b 1k\n.end\n", 2},
		{"x without subckt name", "* t\nX1 ref\n.end\n", 2},
	}
	for _, tt := range tests {
		_, err := Parse(tt.text)
		if err == nil {
			t.Fatalf("%s: expected error, got nil", tt.name)
		}
		var me *MalformedError
		if !errors.As(err, &me) {
			t.Fatalf("%s: expected MalformedError, got %T: %v", tt.name, err, err)
		}
		if me.Line != tt.line {
			t.Fatalf("%s: expected error on line %d, got %d (%v)", tt.name, tt.line, me.Line, err)
		}
	}
}

func TestParseDuplicateNamesAreCaseSensitive(t *testing.T) {
	// r1 and R1 are distinct instance names.
	text := "* t\nR1 a b 1k\nr1 b c 2k\n.end\n"
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(c.Components()) != 2 {
		t.Fatalf("expected 2 components, got %d", len(c.Components()))
	}
}

func TestParseSubcktBlockIsOpaque(t *testing.T) {
	text := `* filter test
.subckt myfilter in out
R1 in out 10k
.ends
X1 sig out myfilter
R1 sig 0 1k
.end
`
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Block internals never count as components, so the R1 inside the
	// block does not collide with the top-level R1.
	comps := c.Components()
	if len(comps) != 2 {
		t.Fatalf("expected 2 top-level components, got %d", len(comps))
	}
	if comps[0].Name != "X1" || comps[1].Name != "R1" {
		t.Fatalf("expected [X1 R1], got [%s %s]", comps[0].Name, comps[1].Name)
	}

	blockLines := 0
	for _, st := range c.Statements {
		if st.Subckt == "myfilter" {
			if st.Kind != KindDirective {
				t.Fatalf("block line %d: expected directive, got %s", st.Line, st.Kind)
			}
			blockLines++
		}
	}
	if blockLines != 3 {
		t.Fatalf("expected 3 block-tagged lines, got %d", blockLines)
	}
}

func TestParseToleratesBlanksAfterEnd(t *testing.T) {
	text := "* t\nR1 a b 1k\n.end\n\n\n"
	c, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	last := c.Statements[len(c.Statements)-1]
	if last.Kind != KindEnd {
		t.Fatalf("expected .end last, got %s", last.Kind)
	}
}

func TestFormatRoundTrips(t *testing.T) {
	texts := []string{
		rcLowpass,
		"* t\nE1 out 0\n+ in 0 10\n.end\n",
		"* filter\n.subckt f a b\nR1 a b 1k\n.ends\nX1 in out f\n.end\n",
	}
	for _, text := range texts {
		c, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		once := c.Format()
		c2, err := Parse(once)
		if err != nil {
			t.Fatalf("reparse failed: %v\n%s", err, once)
		}
		if twice := c2.Format(); twice != once {
			t.Fatalf("format not stable:\nfirst:\n%s\nsecond:\n%s", once, twice)
		}
	}
}

func TestNodeRefCounts(t *testing.T) {
	c, err := Parse(rcLowpass)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	counts := c.NodeRefCounts()
	if counts["in"] != 2 {
		t.Fatalf("expected in referenced twice, got %d", counts["in"])
	}
	if counts["out"] != 2 {
		t.Fatalf("expected out referenced twice, got %d", counts["out"])
	}
	if counts[Ground] != 2 {
		t.Fatalf("expected ground referenced twice, got %d", counts[Ground])
	}
}

func TestNodeOrderFollowsStatementOrder(t *testing.T) {
	c, err := Parse(rcLowpass)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := strings.Join(c.NodeOrder(), " ")
	if got != "in 0 out" {
		t.Fatalf("expected node order \"in 0 out\", got %q", got)
	}
}
