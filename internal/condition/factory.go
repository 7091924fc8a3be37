package condition

import (
	"strings"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// FromConfig builds a Condition from its declarative config.
// Unknown types yield *UnknownConditionTypeError; malformed parameters
// yield *InvalidConditionParameterError.
func FromConfig(cfg domain.ConditionConfig) (Condition, error) {
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	p := newParams(cfg)

	var (
		c   Condition
		err error
	)
	switch cfg.Type {
	case TypeThreshold:
		c, err = thresholdFromParams(p)
	case TypeMACrossover:
		c, err = crossoverFromParams(p)
	case TypeVolumeFilter:
		c, err = volumeFromParams(p)
	case TypeAnd, TypeOr:
		c, err = compositeFromParams(cfg.Type, p)
	default:
		return nil, &UnknownConditionTypeError{Type: cfg.Type}
	}
	if err != nil {
		return nil, err
	}
	if err := p.unknown(); err != nil {
		return nil, err
	}
	return c, nil
}

func fieldParam(p *params, def marketdata.Field) (marketdata.Field, error) {
	name, err := p.text("field", false, string(def))
	if err != nil {
		return "", err
	}
	f, err := marketdata.ParseField(name)
	if err != nil {
		return "", p.invalid("field", "unknown field %q", name)
	}
	return f, nil
}

func thresholdFromParams(p *params) (*Threshold, error) {
	field, err := fieldParam(p, marketdata.FieldClose)
	if err != nil {
		return nil, err
	}
	opName, err := p.text("op", true, "")
	if err != nil {
		return nil, err
	}
	op, ok := opAliases[opName]
	if !ok {
		return nil, p.invalid("op", "unknown operator %q", opName)
	}
	value, err := p.number("value", true, 0)
	if err != nil {
		return nil, err
	}
	return &Threshold{Field: field, Op: op, Value: value}, nil
}

func crossoverFromParams(p *params) (*MACrossover, error) {
	fast, err := p.integer("fast", true, 0)
	if err != nil {
		return nil, err
	}
	slow, err := p.integer("slow", true, 0)
	if err != nil {
		return nil, err
	}
	if fast < 1 {
		return nil, p.invalid("fast", "must be at least 1")
	}
	if slow <= fast {
		return nil, p.invalid("slow", "must be greater than fast (%d)", fast)
	}

	kind, err := p.text("kind", false, KindSMA)
	if err != nil {
		return nil, err
	}
	if kind != KindSMA && kind != KindEMA {
		return nil, p.invalid("kind", "must be %q or %q", KindSMA, KindEMA)
	}

	direction, err := p.text("direction", false, DirectionAbove)
	if err != nil {
		return nil, err
	}
	if direction != DirectionAbove && direction != DirectionBelow {
		return nil, p.invalid("direction", "must be %q or %q", DirectionAbove, DirectionBelow)
	}

	field, err := fieldParam(p, marketdata.FieldClose)
	if err != nil {
		return nil, err
	}

	return &MACrossover{Fast: fast, Slow: slow, Kind: kind, Direction: direction, Field: field}, nil
}

func volumeFromParams(p *params) (*VolumeFilter, error) {
	minVolume, err := p.number("min_volume", false, 0)
	if err != nil {
		return nil, err
	}
	if minVolume < 0 {
		return nil, p.invalid("min_volume", "must not be negative")
	}
	lookback, err := p.integer("lookback", false, 0)
	if err != nil {
		return nil, err
	}
	if lookback < 0 {
		return nil, p.invalid("lookback", "must not be negative")
	}
	multiplier, err := p.number("multiplier", false, 1)
	if err != nil {
		return nil, err
	}
	if multiplier < 0 {
		return nil, p.invalid("multiplier", "must not be negative")
	}
	if lookback == 0 && minVolume == 0 {
		return nil, p.invalid("min_volume", "either min_volume or lookback must be set")
	}
	return &VolumeFilter{MinVolume: minVolume, Lookback: lookback, Multiplier: multiplier}, nil
}

func compositeFromParams(op string, p *params) (*Composite, error) {
	cfgs, err := p.configs("conditions")
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, p.invalid("conditions", "must not be empty")
	}

	children := make([]Condition, len(cfgs))
	for i, cfg := range cfgs {
		child, err := FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &Composite{Op: op, Children: children}, nil
}
