package bridge

import (
	"strconv"

	"github.com/spf13/cast"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// MigrateState computes the renderer-side state carried across a live
// update. For every variable the new definition retains by name, the current
// value survives when its declared type is unchanged or implicitly widenable
// (integer to decimal, string to integer when parsable, string to boolean
// when "true"/"false"). Everything else resets to the new initial value.
func MigrateState(current map[string]any, oldDef, newDef *ir.StateDefinition) map[string]any {
	out := map[string]any{}
	if newDef == nil {
		return out
	}
	for _, v := range newDef.Variables {
		value, held := current[v.Name]
		if !held {
			out[v.Name] = InitialValue(v)
			continue
		}
		var oldVar *ir.StateVariable
		if oldDef != nil {
			oldVar = oldDef.Variable(v.Name)
		}
		if oldVar != nil && oldVar.Type.Equal(v.Type) {
			out[v.Name] = value
			continue
		}
		if migrated, ok := widen(value, oldVar, v.Type); ok {
			out[v.Name] = migrated
			continue
		}
		out[v.Name] = InitialValue(v)
	}
	return out
}

// widen applies the implicit widenings of the migration contract.
func widen(value any, oldVar *ir.StateVariable, target ir.SemType) (any, bool) {
	if oldVar == nil {
		return nil, false
	}
	switch {
	case oldVar.Type.Kind == "integer" && target.Kind == "decimal":
		return cast.ToFloat64(value), true

	case oldVar.Type.Kind == "string" && target.Kind == "integer":
		s := cast.ToString(value)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		return nil, false

	case oldVar.Type.Kind == "string" && target.Kind == "boolean":
		switch cast.ToString(value) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	}
	return nil, false
}

// InitialValue renders a state variable's declared initial as a runtime
// value.
func InitialValue(v ir.StateVariable) any {
	return propToAny(v.Initial)
}

func propToAny(p ir.PropValue) any {
	switch p.Kind {
	case ir.PropString, ir.PropExpr:
		return p.Str
	case ir.PropInteger:
		return p.Int
	case ir.PropDecimal:
		return p.Dec
	case ir.PropBoolean:
		return p.Bool
	case ir.PropList:
		out := make([]any, len(p.Items))
		for i, item := range p.Items {
			out[i] = propToAny(item)
		}
		return out
	case ir.PropMap:
		out := make(map[string]any, len(p.Entries))
		for k, v := range p.Entries {
			out[k] = propToAny(v)
		}
		return out
	}
	return nil
}
