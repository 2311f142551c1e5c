package validator

// The CUE validator is the contract guard between plan files and the
// composer. A plan that drifts from the schema fails here with a field-
// level error instead of surfacing later as a confusing composition
// failure. When validation fails, fix the plan or the schema, don't
// work around it.

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed plan_schema.cue
var schemaFS embed.FS

// Validator validates composition plans against the embedded CUE schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New creates a Validator with the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile("plan_schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	return &Validator{ctx: ctx, schema: schema}, nil
}

// ValidatePlan checks that the data conforms to the #Plan definition.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) ValidatePlan(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling plan to JSON: %w", err)
	}
	return v.ValidatePlanJSON(jsonBytes)
}

// ValidatePlanJSON validates JSON bytes directly against #Plan.
func (v *Validator) ValidatePlanJSON(jsonBytes []byte) error {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling plan as CUE: %w", dataValue.Err())
	}

	planDef := v.schema.LookupPath(cue.ParsePath("#Plan"))
	if planDef.Err() != nil {
		return fmt.Errorf("looking up #Plan definition: %w", planDef.Err())
	}

	unified := planDef.Unify(dataValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("plan validation failed: %s", errors.Details(err, nil))
	}
	return nil
}
