package dispatch

import (
	"fmt"

	"github.com/pders01/navi/internal/proto"
)

// ParamKind is the declared type of a command parameter.
type ParamKind int

const (
	StringParam ParamKind = iota
	IntParam
	BoolParam
)

func (k ParamKind) String() string {
	switch k {
	case IntParam:
		return "int"
	case BoolParam:
		return "bool"
	default:
		return "string"
	}
}

// ParamSpec declares one parameter of a command.
type ParamSpec struct {
	Name     string
	Kind     ParamKind
	Required bool
}

// params holds validated, coerced parameter values.
type params map[string]any

func (p params) str(name, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}

func (p params) num(name string, def int) int {
	if v, ok := p[name].(int); ok {
		return v
	}
	return def
}

func (p params) boolean(name string, def bool) bool {
	if v, ok := p[name].(bool); ok {
		return v
	}
	return def
}

// validate checks the supplied parameters against a command's declared
// schema: unknown names are rejected, required ones must be present, and
// values are coerced to their declared kinds. JSON numbers arrive as
// float64 and are narrowed to int for IntParam.
func validate(spec commandSpec, supplied map[string]any) (params, *proto.Error) {
	declared := make(map[string]ParamSpec, len(spec.params))
	for _, ps := range spec.params {
		declared[ps.Name] = ps
	}

	out := make(params, len(supplied))
	for name, value := range supplied {
		ps, ok := declared[name]
		if !ok {
			return nil, &proto.Error{
				Kind:    proto.KindInvalidParameter,
				Subject: name,
				Message: fmt.Sprintf("unknown parameter %q", name),
			}
		}
		coerced, err := coerce(ps, value)
		if err != nil {
			return nil, &proto.Error{
				Kind:    proto.KindInvalidParameter,
				Subject: name,
				Message: err.Error(),
			}
		}
		out[name] = coerced
	}

	for _, ps := range spec.params {
		if ps.Required {
			if _, ok := out[ps.Name]; !ok {
				return nil, &proto.Error{
					Kind:    proto.KindMissingParameter,
					Subject: ps.Name,
					Message: fmt.Sprintf("missing required parameter %q", ps.Name),
				}
			}
		}
	}

	return out, nil
}

func coerce(ps ParamSpec, value any) (any, error) {
	switch ps.Kind {
	case StringParam:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case IntParam:
		switch n := value.(type) {
		case int:
			return n, nil
		case float64:
			if n == float64(int(n)) {
				return int(n), nil
			}
		}
	case BoolParam:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("parameter %q must be a %s, got %T", ps.Name, ps.Kind, value)
}
