// Package ports determines which nodes of a parsed circuit serve as its
// external ports. Explicit caller-supplied bindings always win; the
// heuristic auto-detect path is a convenience for netlists that follow
// conventional node naming, and it refuses to guess when no candidate
// matches: a silent wrong guess at a stage boundary composes an
// electrically wrong circuit that may still simulate cleanly.
package ports

import (
	"fmt"
	"strings"

	"github.com/clanker-lover/spicebridge/internal/netlist"
)

// Role names used by the resolver and the composer.
const (
	RoleGround = "gnd"
)

// AmbiguousError reports that auto-detection could not find a unique
// candidate node for a required role and no explicit binding was given.
type AmbiguousError struct {
	Role string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous port: no candidate node for required role %q; supply an explicit port map", e.Role)
}

// Heuristics is the table of conventional node spellings used by the
// auto-detect path. Matching is case-insensitive. Spelling matches
// always win over the structural fallback; within the fallback, ties
// are broken by first occurrence in statement order. An empty table
// never matches, so a required role backed by one fails as ambiguous.
type Heuristics struct {
	Inputs  []string
	Outputs []string
	Power   []string
	Grounds []string
}

// DefaultHeuristics returns the conventional spelling table.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		Inputs:  []string{"in", "inp", "in1", "in2", "in3", "inp1", "inp2", "input"},
		Outputs: []string{"out", "vout", "output"},
		Power:   []string{"vcc", "vdd", "vee", "vss"},
		Grounds: []string{"0", "gnd"},
	}
}

func matches(table []string, node string) bool {
	for _, s := range table {
		if strings.EqualFold(s, node) {
			return true
		}
	}
	return false
}

// IsInput reports whether the role name is input-classified.
func (h Heuristics) IsInput(role string) bool { return matches(h.Inputs, role) }

// IsOutput reports whether the role name is output-classified.
func (h Heuristics) IsOutput(role string) bool { return matches(h.Outputs, role) }

// Resolve returns a copy of the circuit with a resolved port map.
//
// When explicit is non-empty it is validated against the circuit (every
// named node must appear on some component statement) and used as-is.
// Otherwise ports are auto-detected from node names: conventionally
// spelled nodes become ports under their own name (ground under the
// "gnd" role). Resolve never fails for a missing role; required-role
// enforcement belongs to the caller via Require.
func Resolve(c *netlist.Circuit, explicit map[string]string, h Heuristics) (*netlist.Circuit, error) {
	out := c.Clone()

	if len(explicit) > 0 {
		for role, node := range explicit {
			if role == "" {
				return nil, fmt.Errorf("explicit port map: empty role name for node %q", node)
			}
			if node != netlist.Ground && !c.HasNode(node) {
				return nil, fmt.Errorf("explicit port %q: node %q does not appear in the circuit", role, node)
			}
		}
		out.Ports = make(map[string]string, len(explicit))
		for role, node := range explicit {
			out.Ports[role] = node
		}
		return out, nil
	}

	out.Ports = autoDetect(c, h)
	return out, nil
}

// Require checks that a resolved circuit exposes a usable node for each
// required role class ("input" or "output"), applying the structural
// input fallback when spelling detection found nothing. It returns the
// possibly-extended port map or an *AmbiguousError naming the first role
// it could not satisfy.
func Require(c *netlist.Circuit, h Heuristics, roles ...string) (*netlist.Circuit, error) {
	out := c.Clone()
	if out.Ports == nil {
		out.Ports = make(map[string]string)
	}
	for _, role := range roles {
		switch role {
		case "input":
			if pickRole(out.Ports, h.Inputs) != "" {
				continue
			}
			node := fallbackInput(c, h)
			if node == "" || len(h.Inputs) == 0 {
				return nil, &AmbiguousError{Role: "input"}
			}
			// Register under the canonical input role name so later
			// role picks recognize it whatever the node is called.
			out.Ports[h.Inputs[0]] = node
		case "output":
			if pickRole(out.Ports, h.Outputs) != "" {
				continue
			}
			return nil, &AmbiguousError{Role: "output"}
		default:
			if _, ok := out.Ports[role]; !ok {
				return nil, &AmbiguousError{Role: role}
			}
		}
	}
	return out, nil
}

// PickInput returns the first input-classified role present in the port
// map, in heuristic-table order, or "".
func (h Heuristics) PickInput(ports map[string]string) string {
	return pickRole(ports, h.Inputs)
}

// PickOutput returns the first output-classified role present in the
// port map, in heuristic-table order, or "".
func (h Heuristics) PickOutput(ports map[string]string) string {
	return pickRole(ports, h.Outputs)
}

func pickRole(ports map[string]string, table []string) string {
	for _, cand := range table {
		for role := range ports {
			if strings.EqualFold(role, cand) {
				return role
			}
		}
	}
	return ""
}

// autoDetect scans component nodes and classifies them by the spelling
// table. Port names are the node names themselves, except ground which
// is always exposed as "gnd".
func autoDetect(c *netlist.Circuit, h Heuristics) map[string]string {
	ports := make(map[string]string)
	for _, node := range c.NodeOrder() {
		switch {
		case matches(h.Grounds, node):
			ports[RoleGround] = node
		case matches(h.Inputs, node), matches(h.Outputs, node), matches(h.Power, node):
			ports[node] = node
		}
	}
	return ports
}

// fallbackInput finds the first node, in statement order, referenced by
// exactly one component that is not ground, not a power rail, and not
// already claimed as an output.
func fallbackInput(c *netlist.Circuit, h Heuristics) string {
	counts := c.NodeRefCounts()
	for _, node := range c.NodeOrder() {
		if counts[node] != 1 {
			continue
		}
		if matches(h.Grounds, node) || matches(h.Power, node) || matches(h.Outputs, node) {
			continue
		}
		return node
	}
	return ""
}
