package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"backtest-lab/internal/domain"
)

// params reads typed values out of a ConditionConfig parameter map and
// reports problems as InvalidConditionParameterError.
type params struct {
	typ  string
	raw  map[string]any
	used map[string]bool
}

func newParams(cfg domain.ConditionConfig) *params {
	return &params{typ: cfg.Type, raw: cfg.Parameters, used: make(map[string]bool)}
}

func (p *params) invalid(name, format string, args ...any) error {
	return &InvalidConditionParameterError{Type: p.typ, Param: name, Reason: fmt.Sprintf(format, args...)}
}

func (p *params) lookup(name string) (any, bool) {
	p.used[name] = true
	v, ok := p.raw[name]
	if ok && v == nil {
		return nil, false
	}
	return v, ok
}

// number returns a numeric parameter, or def when it is absent and not required.
func (p *params) number(name string, required bool, def float64) (float64, error) {
	v, ok := p.lookup(name)
	if !ok {
		if required {
			return 0, p.invalid(name, "required")
		}
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, p.invalid(name, "expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, p.invalid(name, "must be finite")
	}
	return f, nil
}

// integer returns an integral parameter. Floats are accepted when they hold a
// whole number, since JSON decoding yields float64.
func (p *params) integer(name string, required bool, def int) (int, error) {
	v, ok := p.lookup(name)
	if !ok {
		if required {
			return 0, p.invalid(name, "required")
		}
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, p.invalid(name, "expected an integer, got %T", v)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, p.invalid(name, "expected an integer, got %v", v)
	}
	return int(f), nil
}

func (p *params) text(name string, required bool, def string) (string, error) {
	v, ok := p.lookup(name)
	if !ok {
		if required {
			return "", p.invalid(name, "required")
		}
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", p.invalid(name, "expected a string, got %T", v)
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

func (p *params) configs(name string) ([]domain.ConditionConfig, error) {
	v, ok := p.lookup(name)
	if !ok {
		return nil, p.invalid(name, "required")
	}

	switch list := v.(type) {
	case []domain.ConditionConfig:
		return list, nil
	case []any:
		out := make([]domain.ConditionConfig, len(list))
		for i, item := range list {
			cfg, err := p.toConfig(name, i, item)
			if err != nil {
				return nil, err
			}
			out[i] = cfg
		}
		return out, nil
	case []map[string]any:
		out := make([]domain.ConditionConfig, len(list))
		for i, item := range list {
			cfg, err := p.toConfig(name, i, item)
			if err != nil {
				return nil, err
			}
			out[i] = cfg
		}
		return out, nil
	default:
		return nil, p.invalid(name, "expected a list of conditions, got %T", v)
	}
}

func (p *params) toConfig(name string, i int, item any) (domain.ConditionConfig, error) {
	switch c := item.(type) {
	case domain.ConditionConfig:
		return c, nil
	case map[string]any:
		typ, _ := c["type"].(string)
		if typ == "" {
			return domain.ConditionConfig{}, p.invalid(name, "element %d has no type", i)
		}
		cfg := domain.ConditionConfig{Type: typ}
		switch ps := c["parameters"].(type) {
		case map[string]any:
			cfg.Parameters = ps
		case nil:
		default:
			return domain.ConditionConfig{}, p.invalid(name, "element %d parameters must be a map, got %T", i, ps)
		}
		return cfg, nil
	default:
		return domain.ConditionConfig{}, p.invalid(name, "element %d: expected a condition, got %T", i, item)
	}
}

// unknown rejects parameters that no reader asked for.
func (p *params) unknown() error {
	var extra []string
	for k := range p.raw {
		if !p.used[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return p.invalid(extra[0], "unknown parameter")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
