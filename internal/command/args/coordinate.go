package args

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const relativeMarker = "~"

// AxisSpec is fixed per axis when a consumer is built.
type AxisSpec struct {
	Vertical      bool
	AllowRelative bool
}

var (
	Horizontal = AxisSpec{AllowRelative: true}
	Vertical   = AxisSpec{Vertical: true, AllowRelative: true}
)

// Coordinate is one axis of a possibly relative position.
type Coordinate struct {
	Relative bool
	// Value is the offset for relative coordinates, the position otherwise.
	Value float64
	// Integral is set for absolute tokens written without a fraction.
	Integral bool
	Axis     AxisSpec
}

// ParseCoordinate accepts "~", "~<number>" and "<number>".
func ParseCoordinate(token string, axis AxisSpec) (Coordinate, error) {
	if rest, ok := strings.CutPrefix(token, relativeMarker); ok {
		if !axis.AllowRelative {
			return Coordinate{}, fmt.Errorf("%w: relative coordinate %q not allowed here", ErrParse, token)
		}
		c := Coordinate{Relative: true, Axis: axis}
		if rest == "" {
			return c, nil
		}
		v, _, err := parseNumber(rest)
		if err != nil {
			return Coordinate{}, fmt.Errorf("%w: coordinate %q", ErrParse, token)
		}
		c.Value = v
		return c, nil
	}
	v, integral, err := parseNumber(token)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: coordinate %q", ErrParse, token)
	}
	return Coordinate{Value: v, Integral: integral, Axis: axis}, nil
}

// Resolve returns the world value on this axis. origin is only read for
// relative coordinates.
func (c Coordinate) Resolve(origin float64, hasOrigin bool) (float64, error) {
	if !c.Relative {
		return c.Value, nil
	}
	if !hasOrigin {
		return 0, ErrMissingOrigin
	}
	return origin + c.Value, nil
}

// Block resolves to a grid coordinate. Relative values are floored, so
// -0.5 lands on -1; absolute values must already be integers.
func (c Coordinate) Block(origin float64, hasOrigin bool) (int, error) {
	if !c.Relative && !c.Integral {
		return 0, fmt.Errorf("%w: block coordinate %v is not an integer", ErrParse, c.Value)
	}
	v, err := c.Resolve(origin, hasOrigin)
	if err != nil {
		return 0, err
	}
	v = math.Floor(v)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: block coordinate %v out of range", ErrParse, v)
	}
	return int(v), nil
}

// parseNumber accepts an optional sign, digits and at most one decimal point.
// Exponents, hex, NaN and Inf are rejected.
func parseNumber(s string) (v float64, integral bool, err error) {
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" || body == "." {
		return 0, false, strconv.ErrSyntax
	}
	dots := 0
	for _, r := range body {
		switch {
		case r == '.':
			dots++
		case r < '0' || r > '9':
			return 0, false, strconv.ErrSyntax
		}
	}
	if dots > 1 {
		return 0, false, strconv.ErrSyntax
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, dots == 0, nil
}

// triple pops and parses three coordinates. On error nothing is popped.
func triple(raw *RawArgs, axes [3]AxisSpec) ([3]Coordinate, error) {
	var out [3]Coordinate
	m := raw.Mark()
	toks, err := raw.popN(3)
	if err != nil {
		return out, err
	}
	for i, tok := range toks {
		c, err := ParseCoordinate(tok, axes[i])
		if err != nil {
			raw.Reset(m)
			return out, err
		}
		out[i] = c
	}
	return out, nil
}
