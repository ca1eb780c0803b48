package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aegis-gate/aegis/internal/domain/intent"
	"github.com/aegis-gate/aegis/internal/domain/policy"
)

// Narrowing-check limits mirror the cost/nesting discipline this codebase
// already applies to CEL expressions elsewhere: per-tool constraint_expr is
// an operator-authored extensibility point, not an open-ended rule
// language, so it gets the same guardrails.
const (
	maxExpressionLength = 1024
	maxCostBudget       = 100_000
)

type compiledTool struct {
	program cel.Program
	schema  *jsonschema.Schema
}

// narrowing holds the per-tool compiled constraint_expr/constraints_schema
// checks, built once at Registry construction time.
type narrowing struct {
	byTool map[string]*compiledTool
}

func newNarrowing(pol *policy.Policy) (*narrowing, error) {
	n := &narrowing{byTool: map[string]*compiledTool{}}
	if pol == nil {
		return n, nil
	}

	for _, spec := range pol.Tools {
		if spec.ConstraintExpr == "" && spec.ConstraintsSchema == nil {
			continue
		}
		ct := &compiledTool{}

		if spec.ConstraintExpr != "" {
			if len(spec.ConstraintExpr) > maxExpressionLength {
				return nil, fmt.Errorf("registry: tool %s: constraint_expr exceeds %d characters", spec.ToolID, maxExpressionLength)
			}
			prog, err := compileConstraintExpr(spec.ConstraintExpr)
			if err != nil {
				return nil, fmt.Errorf("registry: tool %s: %w", spec.ToolID, err)
			}
			ct.program = prog
		}

		if spec.ConstraintsSchema != nil {
			schema, err := compileConstraintsSchema(spec.ToolID, spec.ConstraintsSchema)
			if err != nil {
				return nil, fmt.Errorf("registry: tool %s: %w", spec.ToolID, err)
			}
			ct.schema = schema
		}

		n.byTool[spec.ToolID] = ct
	}

	return n, nil
}

func compileConstraintExpr(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("constraints", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("constraint_expr must evaluate to a bool")
	}
	prog, err := env.Program(ast, cel.CostLimit(maxCostBudget))
	if err != nil {
		return nil, err
	}
	return prog, nil
}

func compileConstraintsSchema(toolID string, schemaDoc map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, err
	}
	url := "mem://" + toolID + "/constraints_schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// check runs the optional narrowing checks for spec against it. It is only
// ever called after the base prefix/platform allowlist checks already
// passed, and can only turn that allow into a deny.
func (n *narrowing) check(spec policy.ToolSpec, it intent.Intent) bool {
	ct, ok := n.byTool[spec.ToolID]
	if !ok {
		return true
	}

	if ct.schema != nil {
		if err := ct.schema.Validate(toInterface(it.Constraints)); err != nil {
			return false
		}
	}

	if ct.program != nil {
		toolMap := map[string]interface{}{
			"id":   it.Params.ToolID,
			"args": toAnySlice(it.Params.Args),
		}
		out, _, err := ct.program.Eval(map[string]interface{}{
			"tool":        toolMap,
			"constraints": it.Constraints,
		})
		if err != nil {
			return false
		}
		allowed, ok := out.Value().(bool)
		if !ok || !allowed {
			return false
		}
	}

	return true
}

func toInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func toAnySlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
