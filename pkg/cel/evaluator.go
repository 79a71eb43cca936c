package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"veritas/pkg/models"
)

// Evaluator compiles boolean expressions over a single `event` variable.
//
// Fields available on event: id, sender_id, type (text|media|unsupported),
// text, media_ref, mime_type, media_kind, unsupported_kind, received_at.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// CompileFilter compiles expression and checks that it yields a bool.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, program cel.Program, ev models.InboundEvent) (bool, error) {
	result, _, err := program.ContextEval(ctx, map[string]interface{}{
		"event": EventVars(ev),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// EventVars flattens an inbound event into the map exposed to expressions.
// Every key is always present so that expressions never fail on a missing field.
func EventVars(ev models.InboundEvent) map[string]interface{} {
	vars := map[string]interface{}{
		"id":               ev.EventID,
		"sender_id":        ev.SenderID,
		"received_at":      ev.ReceivedAt,
		"type":             "",
		"text":             "",
		"media_ref":        "",
		"mime_type":        "",
		"media_kind":       "",
		"unsupported_kind": "",
	}

	if ev.Payload == nil {
		return vars
	}
	vars["type"] = string(ev.Payload.Type())

	switch p := ev.Payload.(type) {
	case models.TextPayload:
		vars["text"] = p.Body
	case models.MediaPayload:
		vars["media_ref"] = p.MediaRef
		vars["mime_type"] = p.DeclaredMIME
		vars["media_kind"] = string(models.MediaKindFromMIME(p.DeclaredMIME))
	case models.UnsupportedPayload:
		vars["unsupported_kind"] = p.Kind
	}

	return vars
}
