package conditions

import "context"

// Engine evaluates a condition expression against an execution context.
// Four implementations: Simple (binary comparisons), CEL, Expr, and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines bundles the available condition engines, keyed by the
// conditionType value a condition node declares.
type Engines struct {
	byName map[string]Engine
}

// NewEngines builds the default engine set. CEL construction can fail;
// when it does the cel engine is simply absent from the set.
func NewEngines() *Engines {
	e := &Engines{byName: make(map[string]Engine)}
	e.register(NewSimpleEngine())
	e.register(NewExprEngine())
	e.register(NewGoJQEngine())
	if celEngine, err := NewCELEngine(); err == nil {
		e.register(celEngine)
	}
	return e
}

func (e *Engines) register(eng Engine) {
	e.byName[eng.Name()] = eng
}

// ForType returns the engine for a conditionType value. The empty string
// maps to the simple engine.
func (e *Engines) ForType(conditionType string) (Engine, bool) {
	if conditionType == "" {
		conditionType = "simple"
	}
	eng, ok := e.byName[conditionType]
	return eng, ok
}
