package compose

// Stage is one circuit to be combined with others. Ports and Label are
// optional: missing ports are auto-detected, missing labels default to
// S1..SN in list order.
type Stage struct {
	Netlist string            `json:"netlist" yaml:"netlist"`
	Ports   map[string]string `json:"ports,omitempty" yaml:"ports,omitempty"`
	Label   string            `json:"label,omitempty" yaml:"label,omitempty"`
}

// Connection is an explicit wiring override between two stage ports.
type Connection struct {
	FromStage int    `json:"from_stage" yaml:"from_stage"`
	FromPort  string `json:"from_port" yaml:"from_port"`
	ToStage   int    `json:"to_stage" yaml:"to_stage"`
	ToPort    string `json:"to_port" yaml:"to_port"`
}

// Plan is the serializable form of a composition request, as read from
// a YAML or JSON plan file by the CLI and checked by the validator
// before composing.
type Plan struct {
	Stages      []Stage      `json:"stages" yaml:"stages"`
	Connections []Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
	SharedPorts []string     `json:"shared_ports,omitempty" yaml:"shared_ports,omitempty"`
}

// Compose runs the plan.
func (p *Plan) Compose(opts ...Option) (*Result, error) {
	if len(p.SharedPorts) > 0 {
		opts = append(opts, WithSharedPorts(p.SharedPorts))
	}
	return Compose(p.Stages, p.Connections, opts...)
}
