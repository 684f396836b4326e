package record

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
)

// schema compiles the embedded record schema once.
func schema() (*cue.Context, cue.Value) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	})
	return schemaCtx, schemaVal
}

// ValidateSchema checks serialized record bytes against the structural
// schema. The check is deliberately minimal: it enforces the required key
// set {format, step.step_id, step.cmd_module, step.args} and field kinds,
// and leaves everything else open so legacy and future records still parse.
func ValidateSchema(data []byte) error {
	ctx, sv := schema()
	if err := sv.Err(); err != nil {
		return fmt.Errorf("record schema: %w", err)
	}

	expr, err := json.Extract("record.json", data)
	if err != nil {
		return fmt.Errorf("invalid step record JSON: %w", err)
	}
	val := ctx.BuildExpr(expr)
	if err := val.Err(); err != nil {
		return fmt.Errorf("invalid step record JSON: %w", err)
	}

	unified := sv.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("not a valid step record: %w", err)
	}
	return nil
}
