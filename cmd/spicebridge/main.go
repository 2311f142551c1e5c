// =============================================================================
// spicebridge - Main Entry Point
// =============================================================================
//
// This tool turns a set of single-stage SPICE netlists into one composed
// multi-stage circuit.
//
// THE PIPELINE:
//   1. CUE Validator enforces the composition plan contract
//   2. OPA policy screens each stage netlist for unsafe directives
//   3. Parser lifts each netlist into classified statements
//   4. Port resolver finds or validates each stage's named ports
//   5. Prefix engine namespaces every stage under its label
//   6. Composer wires stage outputs to inputs and emits the result
//
// WHEN INVESTIGATING A BAD COMPOSITION:
//   Start at the beginning of the pipeline, not the end!
//   Plan issues → Parse issues → Port issues → Wiring issues
// =============================================================================

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clanker-lover/spicebridge/internal/compose"
	"github.com/clanker-lover/spicebridge/internal/config"
	"github.com/clanker-lover/spicebridge/internal/netlist"
	"github.com/clanker-lover/spicebridge/internal/policy"
	"github.com/clanker-lover/spicebridge/internal/ports"
	"github.com/clanker-lover/spicebridge/internal/validator"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "init":
		runInit()
	case "compose":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		runCompose(os.Args[2])
	case "check":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		runCheck(os.Args[2])
	case "detect":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		runDetect(os.Args[2])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: spicebridge <command> [args]

Commands:
  compose <plan>    Compose stages from a YAML/JSON composition plan
  check <netlist>   Parse and policy-check a single netlist file
  detect <netlist>  Auto-detect and print the ports of a netlist
  init              Create a spicebridge.json configuration file

Configuration:
  spicebridge looks for configuration in:
    1. ./spicebridge.json
    2. ./.spicebridge.json
    3. ~/.config/spicebridge/config.json

  Run 'spicebridge init' to create a default configuration file.`)
}

func runInit() {
	configPath := "spicebridge.json"

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Port name heuristics")
	fmt.Println("  - Shared power/ground rails")
	fmt.Println("  - Netlist size limits")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: Could not load config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	return cfg
}

func heuristicsFrom(cfg *config.Config) ports.Heuristics {
	h := ports.DefaultHeuristics()
	if len(cfg.Heuristics.Inputs) > 0 {
		h.Inputs = cfg.Heuristics.Inputs
	}
	if len(cfg.Heuristics.Outputs) > 0 {
		h.Outputs = cfg.Heuristics.Outputs
	}
	if len(cfg.Heuristics.Power) > 0 {
		h.Power = cfg.Heuristics.Power
	}
	if len(cfg.Heuristics.Grounds) > 0 {
		h.Grounds = cfg.Heuristics.Grounds
	}
	return h
}

func runCompose(planPath string) {
	cfg := loadConfig()

	data, err := os.ReadFile(planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading plan %s: %v\n", planPath, err)
		os.Exit(1)
	}

	var plan compose.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing plan %s: %v\n", planPath, err)
		os.Exit(1)
	}

	v, err := validator.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plan schema: %v\n", err)
		os.Exit(1)
	}
	if err := v.ValidatePlan(plan); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid plan %s:\n%v\n", planPath, err)
		os.Exit(1)
	}

	eng, err := policy.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading safety policy: %v\n", err)
		os.Exit(1)
	}
	if cfg.MaxNetlistSize > 0 {
		eng.MaxSize = cfg.MaxNetlistSize
	}
	for i, stage := range plan.Stages {
		result, err := eng.Check(stage.Netlist, cfg.Compose.AllowIncludes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking stage %d: %v\n", i, err)
			os.Exit(1)
		}
		if len(result.Violations) > 0 {
			for _, viol := range result.Violations {
				fmt.Fprintf(os.Stderr, "stage %d: line %d: [%s] %s\n",
					i, viol.Line, viol.Rule, viol.Message)
			}
			os.Exit(1)
		}
	}

	opts := []compose.Option{compose.WithHeuristics(heuristicsFrom(cfg))}
	if len(cfg.Compose.SharedPorts) > 0 {
		opts = append(opts, compose.WithSharedPorts(cfg.Compose.SharedPorts))
	}

	result, err := plan.Compose(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := struct {
		Netlist string              `json:"netlist"`
		Ports   map[string]string   `json:"ports"`
		Stages  []compose.StageInfo `json:"stages"`
	}{
		Netlist: result.Netlist,
		Ports:   result.Ports,
		Stages:  result.Stages,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCheck(path string) {
	cfg := loadConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	eng, err := policy.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading safety policy: %v\n", err)
		os.Exit(1)
	}
	if cfg.MaxNetlistSize > 0 {
		eng.MaxSize = cfg.MaxNetlistSize
	}
	result, err := eng.Check(string(data), cfg.Compose.AllowIncludes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, viol := range result.Violations {
		fmt.Printf("line %d: [%s] %s\n", viol.Line, viol.Rule, viol.Message)
	}

	circuit, err := netlist.Parse(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(result.Violations) > 0 {
		os.Exit(1)
	}
	fmt.Printf("%s: OK (%d components)\n", path, len(circuit.Components()))
}

func runDetect(path string) {
	cfg := loadConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	circuit, err := netlist.Parse(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	detected, err := ports.Resolve(circuit, nil, heuristicsFrom(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(detected.Ports); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
