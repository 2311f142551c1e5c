package netlist

import (
	"fmt"
	"sort"
	"strings"
)

// Ground is the reserved global reference node. It is shared by every
// circuit and every composed stage and is never renamed.
const Ground = "0"

// Kind classifies a parsed netlist statement.
type Kind int

const (
	// KindTitle is the first non-blank line of a netlist. It is always a
	// title, whatever its shape.
	KindTitle Kind = iota

	// KindComment is a *-prefixed line, preserved verbatim and inert.
	KindComment

	// KindBlank is an empty line, preserved and inert.
	KindBlank

	// KindComponent is a component instance line.
	KindComponent

	// KindDirective is any other dot-line, passed through verbatim.
	// Lines inside a .subckt block (including the delimiters) are
	// directives tagged with the enclosing block name.
	KindDirective

	// KindEnd is the .end terminator. Exactly one per circuit, last.
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindTitle:
		return "title"
	case KindComment:
		return "comment"
	case KindBlank:
		return "blank"
	case KindComponent:
		return "component"
	case KindDirective:
		return "directive"
	case KindEnd:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// nodeCounts maps a SPICE component type letter to the number of nodes
// that follow the instance name. X (sub-circuit call) is handled
// separately: at least one node followed by a sub-circuit name.
var nodeCounts = map[byte]int{
	'R': 2, 'C': 2, 'L': 2,
	'V': 2, 'I': 2,
	'D': 2,
	'Q': 3, 'J': 3,
	'M': 4,
	'E': 4, 'G': 4,
	'F': 2, 'H': 2,
	'B': 2,
}

// Statement is one parsed line of netlist text.
type Statement struct {
	Kind Kind
	Line int    // 1-based physical line number in the source text
	Raw  string // original text for non-component statements

	// Component fields, set only for KindComponent.
	Name   string   // instance name, e.g. "R1"
	Letter byte     // upper-cased SPICE type letter, e.g. 'R'
	Nodes  []string // ordered node names
	Value  string   // opaque trailing value/model text

	// Subckt is the enclosing .subckt block name for directive lines
	// that sit inside such a block.
	Subckt string
}

// Text renders the statement back to one line of netlist text.
// Component statements are rebuilt from their fields so that renames
// are reflected; everything else keeps its original text.
func (s Statement) Text() string {
	if s.Kind != KindComponent {
		return s.Raw
	}
	parts := make([]string, 0, len(s.Nodes)+2)
	parts = append(parts, s.Name)
	parts = append(parts, s.Nodes...)
	if s.Value != "" {
		parts = append(parts, s.Value)
	}
	return strings.Join(parts, " ")
}

// Circuit is an ordered statement sequence plus a resolved port map and
// the stage tag used for prefixing. Circuits are values: every transform
// returns a new Circuit and never mutates its input.
type Circuit struct {
	Statements []Statement
	Ports      map[string]string // role -> node
	Tag        string
}

// Clone returns a deep copy of the circuit.
func (c *Circuit) Clone() *Circuit {
	out := &Circuit{
		Statements: make([]Statement, len(c.Statements)),
		Tag:        c.Tag,
	}
	for i, st := range c.Statements {
		cp := st
		cp.Nodes = append([]string(nil), st.Nodes...)
		out.Statements[i] = cp
	}
	if c.Ports != nil {
		out.Ports = make(map[string]string, len(c.Ports))
		for role, node := range c.Ports {
			out.Ports[role] = node
		}
	}
	return out
}

// Components returns the component statements in order, excluding
// sub-circuit block internals.
func (c *Circuit) Components() []Statement {
	var out []Statement
	for _, st := range c.Statements {
		if st.Kind == KindComponent && st.Subckt == "" {
			out = append(out, st)
		}
	}
	return out
}

// NodeOrder returns every node referenced by a component statement, in
// first-occurrence statement order, without duplicates.
func (c *Circuit) NodeOrder() []string {
	seen := make(map[string]bool)
	var out []string
	for _, st := range c.Statements {
		if st.Kind != KindComponent || st.Subckt != "" {
			continue
		}
		for _, n := range st.Nodes {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// NodeRefCounts returns the number of component statements referencing
// each node. A node listed twice on one component counts once.
func (c *Circuit) NodeRefCounts() map[string]int {
	counts := make(map[string]int)
	for _, st := range c.Statements {
		if st.Kind != KindComponent || st.Subckt != "" {
			continue
		}
		onLine := make(map[string]bool)
		for _, n := range st.Nodes {
			if !onLine[n] {
				onLine[n] = true
				counts[n]++
			}
		}
	}
	return counts
}

// HasNode reports whether any component statement references the node.
func (c *Circuit) HasNode(node string) bool {
	for _, st := range c.Statements {
		if st.Kind != KindComponent || st.Subckt != "" {
			continue
		}
		for _, n := range st.Nodes {
			if n == node {
				return true
			}
		}
	}
	return false
}

// Format re-emits the circuit as canonical netlist text with a trailing
// newline. Parsing the result yields an equal circuit.
func (c *Circuit) Format() string {
	var b strings.Builder
	for _, st := range c.Statements {
		b.WriteString(st.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

// PortRoles returns the circuit's port roles sorted by name, for stable
// reporting.
func (c *Circuit) PortRoles() []string {
	roles := make([]string, 0, len(c.Ports))
	for role := range c.Ports {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
