// Package prefix rewrites a circuit's internal identifiers under a stage
// tag so that independently designed stages can share one flat netlist
// without collisions.
package prefix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clanker-lover/spicebridge/internal/netlist"
)

// CollisionError reports that two statements would carry the same
// instance name after rewriting. This is a caller error (a stage tag
// reused within one composition call, or two instance names that differ
// only by case); it is reported rather than silently overwritten.
type CollisionError struct {
	Name string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("prefix collision: instance name %q produced twice", e.Name)
}

// Options tunes a prefixing pass.
type Options struct {
	// Preserve lists nodes that keep their name, on top of the global
	// ground node which is always a fixed point.
	Preserve []string
}

var paramRE = regexp.MustCompile(`(?i)^\.param\s+(\w+)\s*=\s*(\S+)\s*$`)

// Apply returns a new circuit in which every component instance name and
// every non-preserved node is rewritten by deterministic concatenation
// with the tag: instance R1 under tag S1 becomes RS1_1 (the SPICE type
// letter stays in front so the simulator still recognizes the device),
// node n becomes S1_n. The port map is rewritten to the new node names.
// .param names and {name} references are rewritten the same way so that
// same-named parameters from different stages stay independent.
// Statement order and value fields are otherwise unchanged.
func Apply(c *netlist.Circuit, tag string, opts Options) (*netlist.Circuit, error) {
	if tag == "" {
		return nil, fmt.Errorf("prefix: empty stage tag")
	}

	preserve := map[string]bool{netlist.Ground: true}
	for _, n := range opts.Preserve {
		preserve[n] = true
	}

	params := paramNames(c)
	out := c.Clone()
	out.Tag = tag

	seen := make(map[string]bool)
	for i := range out.Statements {
		st := &out.Statements[i]
		switch {
		case st.Subckt != "":
			// Sub-circuit blocks are self-contained; their internals
			// never leak into the flat namespace.
		case st.Kind == netlist.KindComponent:
			st.Name = prefixRef(st.Name, st.Letter, tag)
			for j, n := range st.Nodes {
				if !preserve[n] {
					st.Nodes[j] = tag + "_" + n
				}
			}
			if st.Letter == 'F' || st.Letter == 'H' {
				st.Value = prefixControlRef(st.Value, tag)
			}
			if st.Letter != 'X' {
				st.Value = prefixParamRefs(st.Value, tag, params)
			}
			if seen[st.Name] {
				return nil, &CollisionError{Name: st.Name}
			}
			seen[st.Name] = true
		case st.Kind == netlist.KindDirective:
			if m := paramRE.FindStringSubmatch(strings.TrimSpace(st.Raw)); m != nil {
				val := prefixParamRefs(m[2], tag, params)
				st.Raw = fmt.Sprintf(".param %s_%s=%s", tag, m[1], val)
			} else {
				st.Raw = prefixParamRefs(st.Raw, tag, params)
			}
		case st.Kind == netlist.KindComment:
			trimmed := strings.TrimLeft(strings.TrimSpace(st.Raw), "* ")
			st.Raw = fmt.Sprintf("* [%s] %s", tag, trimmed)
		}
	}

	for role, node := range out.Ports {
		if !preserve[node] {
			out.Ports[role] = tag + "_" + node
		}
	}
	return out, nil
}

// paramNames collects the names declared by .param directives outside
// sub-circuit blocks.
func paramNames(c *netlist.Circuit) []string {
	var names []string
	for _, st := range c.Statements {
		if st.Kind != netlist.KindDirective || st.Subckt != "" {
			continue
		}
		if m := paramRE.FindStringSubmatch(strings.TrimSpace(st.Raw)); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// prefixRef rewrites an instance name, keeping the type letter in front.
func prefixRef(name string, letter byte, tag string) string {
	return string(letter) + tag + "_" + name[1:]
}

// prefixControlRef rewrites the controlling-source token of an F/H
// controlled source, which names a V source rather than a node.
func prefixControlRef(value, tag string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return value
	}
	vref := fields[0]
	if vref[0] == 'V' || vref[0] == 'v' {
		fields[0] = "V" + tag + "_" + vref[1:]
	} else {
		fields[0] = tag + "_" + vref
	}
	return strings.Join(fields, " ")
}

// prefixParamRefs rewrites {name} parameter references for each declared
// parameter.
func prefixParamRefs(s, tag string, params []string) string {
	for _, p := range params {
		s = strings.ReplaceAll(s, "{"+p+"}", "{"+tag+"_"+p+"}")
	}
	return s
}
