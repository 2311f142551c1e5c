package netlist

import (
	"fmt"
	"strings"
)

// MalformedError reports a netlist that failed to parse, with the
// 1-based line number of the offending line.
type MalformedError struct {
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed netlist: line %d: %s", e.Line, e.Reason)
}

func malformed(line int, format string, args ...interface{}) error {
	return &MalformedError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// logicalLine is a physical line with its continuations folded in.
type logicalLine struct {
	text string
	line int // line number of the first physical line
}

// foldContinuations reassembles +-continuation lines onto the statement
// they continue, so that statements split across lines are seen whole.
func foldContinuations(text string) ([]logicalLine, error) {
	raw := strings.Split(text, "\n")
	// A trailing newline produces one empty trailing element; drop it so
	// it does not count as a blank statement.
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}

	var lines []logicalLine
	for i, l := range raw {
		l = strings.TrimRight(l, "\r")
		stripped := strings.TrimSpace(l)
		if strings.HasPrefix(stripped, "+") {
			if len(lines) == 0 {
				return nil, malformed(i+1, "continuation line with nothing to continue")
			}
			prev := &lines[len(lines)-1]
			prev.text += " " + strings.TrimSpace(strings.TrimPrefix(stripped, "+"))
			continue
		}
		lines = append(lines, logicalLine{text: l, line: i + 1})
	}
	return lines, nil
}

// Parse converts raw netlist text into a Circuit. It is a pure function
// of its input: the same text always yields the same statement sequence
// or the same *MalformedError.
//
// The first non-blank line is unconditionally the title, whatever its
// shape. Blank lines and *-comments are preserved as inert statements.
// A line is a component instance only if its leading token starts with a
// recognized SPICE type letter and carries the node count that letter
// requires; the trailing value/model text is captured verbatim and never
// interpreted. .subckt blocks are carried as opaque directive lines.
// Exactly one .end terminator is required, and it must be last.
func Parse(text string) (*Circuit, error) {
	lines, err := foldContinuations(text)
	if err != nil {
		return nil, err
	}

	c := &Circuit{}
	names := make(map[string]int) // instance name -> line of first use
	titleSeen := false
	endSeen := false
	subckt := "" // enclosing .subckt name, "" outside a block
	subcktLine := 0
	lastLine := 0

	for _, ll := range lines {
		stripped := strings.TrimSpace(ll.text)

		// Leading blanks before the title are dropped; blanks elsewhere
		// are inert statements. Blanks after .end are tolerated.
		if stripped == "" {
			if titleSeen && !endSeen {
				c.Statements = append(c.Statements, Statement{Kind: KindBlank, Line: ll.line})
			}
			continue
		}
		lastLine = ll.line

		if !titleSeen {
			titleSeen = true
			c.Statements = append(c.Statements, Statement{Kind: KindTitle, Line: ll.line, Raw: ll.text})
			continue
		}
		if endSeen {
			return nil, malformed(ll.line, "statement after .end terminator")
		}

		if subckt != "" {
			st := Statement{Kind: KindDirective, Line: ll.line, Raw: ll.text, Subckt: subckt}
			c.Statements = append(c.Statements, st)
			if isDirective(stripped, ".ends") {
				subckt = ""
			}
			continue
		}

		if strings.HasPrefix(stripped, "*") {
			c.Statements = append(c.Statements, Statement{Kind: KindComment, Line: ll.line, Raw: ll.text})
			continue
		}

		if strings.HasPrefix(stripped, ".") {
			fields := strings.Fields(stripped)
			name := strings.ToLower(fields[0])
			switch {
			case name == ".end" && len(fields) == 1:
				endSeen = true
				c.Statements = append(c.Statements, Statement{Kind: KindEnd, Line: ll.line, Raw: stripped})
			case name == ".subckt":
				if len(fields) < 2 {
					return nil, malformed(ll.line, ".subckt is missing its name")
				}
				subckt = fields[1]
				subcktLine = ll.line
				c.Statements = append(c.Statements, Statement{Kind: KindDirective, Line: ll.line, Raw: ll.text, Subckt: subckt})
			case name == ".ends":
				return nil, malformed(ll.line, ".ends without a matching .subckt")
			default:
				c.Statements = append(c.Statements, Statement{Kind: KindDirective, Line: ll.line, Raw: ll.text})
			}
			continue
		}

		st, err := parseComponent(stripped, ll.line)
		if err != nil {
			return nil, err
		}
		if first, dup := names[st.Name]; dup {
			return nil, malformed(ll.line, "duplicate component name %q (first used on line %d)", st.Name, first)
		}
		names[st.Name] = ll.line
		c.Statements = append(c.Statements, st)
	}

	if subckt != "" {
		return nil, malformed(subcktLine, "unterminated .subckt block %q", subckt)
	}
	if !titleSeen {
		return nil, malformed(1, "empty netlist")
	}
	if !endSeen {
		return nil, malformed(lastLine+1, "missing .end terminator")
	}
	return c, nil
}

// isDirective reports whether the stripped line's first token is the
// given dot-directive, case-insensitively.
func isDirective(stripped, directive string) bool {
	fields := strings.Fields(stripped)
	return len(fields) > 0 && strings.EqualFold(fields[0], directive)
}

func parseComponent(stripped string, line int) (Statement, error) {
	tokens := strings.Fields(stripped)
	name := tokens[0]
	letter := upperByte(name[0])

	if len(name) < 2 {
		return Statement{}, malformed(line, "component %q has an empty instance name", name)
	}

	if letter == 'X' {
		// X<name> node1 [node2 ...] subckt_name
		if len(tokens) < 3 {
			return Statement{}, malformed(line, "sub-circuit call %q needs at least one node and a sub-circuit name", name)
		}
		return Statement{
			Kind:   KindComponent,
			Line:   line,
			Name:   name,
			Letter: letter,
			Nodes:  append([]string(nil), tokens[1:len(tokens)-1]...),
			Value:  tokens[len(tokens)-1],
		}, nil
	}

	want, ok := nodeCounts[letter]
	if !ok {
		return Statement{}, malformed(line, "unrecognized component type %q", name)
	}
	if len(tokens) < want+2 {
		return Statement{}, malformed(line, "component %q needs %d nodes and a value, got %d fields", name, want, len(tokens)-1)
	}
	return Statement{
		Kind:   KindComponent,
		Line:   line,
		Name:   name,
		Letter: letter,
		Nodes:  append([]string(nil), tokens[1:1+want]...),
		Value:  strings.Join(tokens[1+want:], " "),
	}, nil
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
