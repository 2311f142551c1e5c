// Package compose stitches independently designed circuit stages into
// one flat, simulatable netlist.
//
// THE PIPELINE:
//  1. Parser turns each stage's text into a typed statement sequence
//  2. Port resolver binds role names to nodes (explicit map or heuristics)
//  3. Prefix engine renames each stage's identifiers under its label
//  4. Connections unify output/input nodes into shared wire nodes
//  5. Assembly emits one title, deduplicated .subckt/.include blocks,
//     every stage's statements, and one .end terminator
//
// Every step produces new values; caller-supplied stages are never
// mutated, and a failed composition returns nothing partial.
package compose

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clanker-lover/spicebridge/internal/netlist"
	"github.com/clanker-lover/spicebridge/internal/ports"
	"github.com/clanker-lover/spicebridge/internal/prefix"
)

// ErrEmptyComposition is returned when no stages are supplied.
var ErrEmptyComposition = errors.New("composition requires at least one stage")

// StageError wraps a parse, port-resolution, or prefixing failure with
// the index of the stage it occurred on.
type StageError struct {
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d: %v", e.Index, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WiringError reports an explicit connection naming a role that does not
// exist on the named stage, or a stage index out of range.
type WiringError struct {
	Stage int
	Role  string
}

func (e *WiringError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("wiring mismatch: stage index %d out of range", e.Stage)
	}
	return fmt.Sprintf("wiring mismatch: stage %d has no port role %q", e.Stage, e.Role)
}

// Result is a finished composition.
type Result struct {
	Circuit *netlist.Circuit  // the flattened statement sequence
	Netlist string            // its serialized text
	Ports   map[string]string // composite port map (role -> node)
	Stages  []StageInfo       // per-stage info in composition order
}

// StageInfo describes one stage after prefixing and wiring.
type StageInfo struct {
	Label string            `json:"label"`
	Index int               `json:"index"`
	Ports map[string]string `json:"ports"`
}

// Option tunes a composition call.
type Option func(*composer)

// WithHeuristics overrides the port-detection spelling table.
func WithHeuristics(h ports.Heuristics) Option {
	return func(c *composer) { c.heur = h }
}

// WithSharedPorts overrides the roles whose nodes are shared across all
// stages and never prefixed (default: gnd).
func WithSharedPorts(roles []string) Option {
	return func(c *composer) { c.sharedRoles = roles }
}

type composer struct {
	heur        ports.Heuristics
	sharedRoles []string
}

var analysisDirectives = map[string]bool{
	".ac": true, ".tran": true, ".op": true, ".dc": true,
}

// Compose combines the stages, in order, into a single flat netlist.
//
// With conns == nil, each stage's output is wired to the next stage's
// input. An explicit (possibly empty) connection list disables
// auto-wiring and is validated instead. Stage labels default to S1..SN;
// a repeated label is a prefix collision and is rejected before any
// parsing or unification. The composite port map exposes the first
// stage's unconnected input roles, the last stage's unconnected output
// roles, and ground.
func Compose(stages []Stage, conns []Connection, opts ...Option) (*Result, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyComposition
	}

	cp := &composer{heur: ports.DefaultHeuristics(), sharedRoles: []string{ports.RoleGround}}
	for _, o := range opts {
		o(cp)
	}

	labels, err := stageLabels(stages)
	if err != nil {
		return nil, err
	}

	resolved, err := cp.parseAndResolve(stages, conns)
	if err != nil {
		return nil, err
	}

	if conns == nil {
		conns, err = cp.autoConnections(resolved, labels)
	} else {
		err = validateConnections(conns, resolved)
	}
	if err != nil {
		return nil, err
	}

	shared := cp.sharedNodes(resolved)

	prefixed := make([]*netlist.Circuit, len(resolved))
	for i, c := range resolved {
		p, err := prefix.Apply(c, labels[i], prefix.Options{Preserve: shared})
		if err != nil {
			return nil, &StageError{Index: i, Err: err}
		}
		prefixed[i] = p
	}

	stripStimulusSources(prefixed, conns)
	wireConnections(prefixed, conns, labels)

	out, err := cp.assemble(prefixed, labels)
	if err != nil {
		return nil, err
	}

	infos := make([]StageInfo, len(prefixed))
	for i, p := range prefixed {
		infos[i] = StageInfo{Label: labels[i], Index: i, Ports: p.Ports}
	}

	return &Result{
		Circuit: out,
		Netlist: out.Format(),
		Ports:   cp.compositePorts(prefixed, conns),
		Stages:  infos,
	}, nil
}

// stageLabels assigns default S1..SN labels and rejects duplicates.
func stageLabels(stages []Stage) ([]string, error) {
	labels := make([]string, len(stages))
	seen := make(map[string]bool)
	for i, s := range stages {
		label := s.Label
		if label == "" {
			label = fmt.Sprintf("S%d", i+1)
		}
		if seen[label] {
			return nil, &prefix.CollisionError{Name: label}
		}
		seen[label] = true
		labels[i] = label
	}
	return labels, nil
}

// parseAndResolve parses every stage and resolves its ports, enforcing
// the roles auto-wiring will need. It fails fast on the first bad stage.
func (cp *composer) parseAndResolve(stages []Stage, conns []Connection) ([]*netlist.Circuit, error) {
	out := make([]*netlist.Circuit, len(stages))
	for i, s := range stages {
		c, err := netlist.Parse(s.Netlist)
		if err != nil {
			return nil, &StageError{Index: i, Err: err}
		}
		c, err = ports.Resolve(c, s.Ports, cp.heur)
		if err != nil {
			return nil, &StageError{Index: i, Err: err}
		}
		if conns == nil {
			var need []string
			if i < len(stages)-1 {
				need = append(need, "output")
			}
			if i > 0 {
				need = append(need, "input")
			}
			c, err = ports.Require(c, cp.heur, need...)
			if err != nil {
				return nil, &StageError{Index: i, Err: err}
			}
		}
		out[i] = c
	}
	return out, nil
}

// autoConnections wires out(i) -> in(i+1) between adjacent stages.
func (cp *composer) autoConnections(resolved []*netlist.Circuit, labels []string) ([]Connection, error) {
	var conns []Connection
	for i := 0; i < len(resolved)-1; i++ {
		from := cp.heur.PickOutput(resolved[i].Ports)
		if from == "" {
			return nil, &StageError{Index: i, Err: &ports.AmbiguousError{Role: "output"}}
		}
		to := cp.heur.PickInput(resolved[i+1].Ports)
		if to == "" {
			return nil, &StageError{Index: i + 1, Err: &ports.AmbiguousError{Role: "input"}}
		}
		conns = append(conns, Connection{FromStage: i, FromPort: from, ToStage: i + 1, ToPort: to})
	}
	return conns, nil
}

func validateConnections(conns []Connection, resolved []*netlist.Circuit) error {
	for _, conn := range conns {
		if conn.FromStage < 0 || conn.FromStage >= len(resolved) {
			return &WiringError{Stage: conn.FromStage}
		}
		if conn.ToStage < 0 || conn.ToStage >= len(resolved) {
			return &WiringError{Stage: conn.ToStage}
		}
		if _, ok := resolved[conn.FromStage].Ports[conn.FromPort]; !ok {
			return &WiringError{Stage: conn.FromStage, Role: conn.FromPort}
		}
		if _, ok := resolved[conn.ToStage].Ports[conn.ToPort]; !ok {
			return &WiringError{Stage: conn.ToStage, Role: conn.ToPort}
		}
	}
	return nil
}

// sharedNodes collects the nodes bound to shared roles across all
// stages. These are never prefixed, which is what makes them shared.
func (cp *composer) sharedNodes(resolved []*netlist.Circuit) []string {
	seen := map[string]bool{netlist.Ground: true}
	shared := []string{netlist.Ground}
	for _, role := range cp.sharedRoles {
		for _, c := range resolved {
			if node, ok := c.Ports[role]; ok && !seen[node] {
				seen[node] = true
				shared = append(shared, node)
			}
		}
	}
	return shared
}

// stripStimulusSources drops V/I sources driving a node that receives an
// incoming connection: a stage template's test stimulus must not fight
// the previous stage's output.
func stripStimulusSources(prefixed []*netlist.Circuit, conns []Connection) {
	incoming := make(map[int]map[string]bool)
	for _, conn := range conns {
		node := prefixed[conn.ToStage].Ports[conn.ToPort]
		if incoming[conn.ToStage] == nil {
			incoming[conn.ToStage] = make(map[string]bool)
		}
		incoming[conn.ToStage][node] = true
	}
	for i, nodes := range incoming {
		c := prefixed[i]
		kept := c.Statements[:0]
		for _, st := range c.Statements {
			if st.Kind == netlist.KindComponent && st.Subckt == "" &&
				(st.Letter == 'V' || st.Letter == 'I') &&
				len(st.Nodes) > 0 && nodes[st.Nodes[0]] {
				continue
			}
			kept = append(kept, st)
		}
		c.Statements = kept
	}
}

// wireConnections unifies each connection's two prefixed nodes to a
// single wire node, consistently across every statement of every stage
// and every stage's port map.
func wireConnections(prefixed []*netlist.Circuit, conns []Connection, labels []string) {
	for _, conn := range conns {
		fromNode := prefixed[conn.FromStage].Ports[conn.FromPort]
		toNode := prefixed[conn.ToStage].Ports[conn.ToPort]
		wire := fmt.Sprintf("wire_%s_%s", labels[conn.FromStage], labels[conn.ToStage])

		for _, c := range prefixed {
			renameNode(c, fromNode, wire)
			renameNode(c, toNode, wire)
		}
	}
}

// renameNode rewrites every occurrence of a node in component statements,
// node-referencing directives, and the port map.
func renameNode(c *netlist.Circuit, old, repl string) {
	if old == repl {
		return
	}
	for i := range c.Statements {
		st := &c.Statements[i]
		if st.Subckt != "" {
			continue
		}
		switch st.Kind {
		case netlist.KindComponent:
			for j, n := range st.Nodes {
				if n == old {
					st.Nodes[j] = repl
				}
			}
		case netlist.KindDirective:
			st.Raw = renameToken(st.Raw, old, repl)
		}
	}
	for role, node := range c.Ports {
		if node == old {
			c.Ports[role] = repl
		}
	}
}

// renameToken replaces whole whitespace-delimited tokens equal to old.
func renameToken(s, old, repl string) string {
	fields := strings.Fields(s)
	changed := false
	for i, f := range fields {
		if f == old {
			fields[i] = repl
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.Join(fields, " ")
}

// assemble concatenates the prefixed stages under one title and one
// terminator, hoisting deduplicated .subckt blocks and .include lines to
// the top.
func (cp *composer) assemble(prefixed []*netlist.Circuit, labels []string) (*netlist.Circuit, error) {
	out := &netlist.Circuit{}
	add := func(st netlist.Statement) {
		st.Line = len(out.Statements) + 1
		out.Statements = append(out.Statements, st)
	}

	add(netlist.Statement{Kind: netlist.KindTitle, Raw: "* Composed multi-stage circuit"})

	for _, block := range dedupSubckts(prefixed) {
		add(netlist.Statement{Kind: netlist.KindBlank})
		for _, st := range block {
			add(st)
		}
	}
	for _, inc := range dedupIncludes(prefixed) {
		add(netlist.Statement{Kind: netlist.KindBlank})
		add(netlist.Statement{Kind: netlist.KindDirective, Raw: inc})
	}

	names := make(map[string]bool)
	for i, c := range prefixed {
		add(netlist.Statement{Kind: netlist.KindBlank})
		add(netlist.Statement{Kind: netlist.KindComment, Raw: fmt.Sprintf("* --- Stage: %s ---", labels[i])})
		for _, st := range c.Statements {
			if !keepInAssembly(st) {
				continue
			}
			if st.Kind == netlist.KindComponent {
				if names[st.Name] {
					return nil, &prefix.CollisionError{Name: st.Name}
				}
				names[st.Name] = true
			}
			add(st)
		}
	}

	add(netlist.Statement{Kind: netlist.KindEnd, Raw: ".end"})
	return out, nil
}

// keepInAssembly filters out per-stage statements that the flat netlist
// replaces or hoists: titles, terminators, analysis directives, subckt
// blocks, and includes.
func keepInAssembly(st netlist.Statement) bool {
	switch st.Kind {
	case netlist.KindTitle, netlist.KindEnd:
		return false
	case netlist.KindDirective:
		if st.Subckt != "" {
			return false
		}
		fields := strings.Fields(st.Raw)
		if len(fields) == 0 {
			return false
		}
		name := strings.ToLower(fields[0])
		return !analysisDirectives[name] && name != ".include"
	}
	return true
}

// dedupSubckts collects .subckt blocks from every stage in order,
// keeping the first occurrence of each name. A later same-named block
// with different content is still dropped, but with a warning: the
// stages disagree about the model and the first definition wins.
func dedupSubckts(prefixed []*netlist.Circuit) [][]netlist.Statement {
	seen := make(map[string]string) // name -> rendered block text
	var blocks [][]netlist.Statement
	flush := func(name string, cur []netlist.Statement) {
		if name == "" {
			return
		}
		var b strings.Builder
		for _, st := range cur {
			b.WriteString(st.Text())
			b.WriteByte('\n')
		}
		text := b.String()
		if prev, ok := seen[name]; ok {
			if prev != text {
				slog.Warn("conflicting .subckt definitions, keeping the first",
					"subckt", name)
			}
			return
		}
		seen[name] = text
		blocks = append(blocks, cur)
	}
	for _, c := range prefixed {
		var cur []netlist.Statement
		curName := ""
		for _, st := range c.Statements {
			if st.Subckt == "" {
				continue
			}
			if st.Subckt != curName {
				flush(curName, cur)
				curName = st.Subckt
				cur = nil
			}
			cur = append(cur, st)
		}
		flush(curName, cur)
	}
	return blocks
}

// dedupIncludes collects .include lines from every stage in order,
// keeping the first occurrence of each.
func dedupIncludes(prefixed []*netlist.Circuit) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range prefixed {
		for _, st := range c.Statements {
			if st.Kind != netlist.KindDirective || st.Subckt != "" {
				continue
			}
			trimmed := strings.TrimSpace(st.Raw)
			if !strings.HasPrefix(strings.ToLower(trimmed), ".include") {
				continue
			}
			if !seen[trimmed] {
				seen[trimmed] = true
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// compositePorts builds the externally visible port map: the first
// stage's unconnected input roles, the last stage's unconnected output
// roles, and ground. Intermediate inter-stage ports are consumed.
func (cp *composer) compositePorts(prefixed []*netlist.Circuit, conns []Connection) map[string]string {
	consumed := make(map[int]map[string]bool)
	mark := func(stage int, role string) {
		if consumed[stage] == nil {
			consumed[stage] = make(map[string]bool)
		}
		consumed[stage][role] = true
	}
	for _, conn := range conns {
		mark(conn.FromStage, conn.FromPort)
		mark(conn.ToStage, conn.ToPort)
	}

	out := make(map[string]string)
	first, last := 0, len(prefixed)-1
	for role, node := range prefixed[first].Ports {
		if cp.heur.IsInput(role) && !consumed[first][role] {
			out[role] = node
		}
	}
	for role, node := range prefixed[last].Ports {
		if cp.heur.IsOutput(role) && !consumed[last][role] {
			out[role] = node
		}
	}
	out[ports.RoleGround] = netlist.Ground
	return out
}
