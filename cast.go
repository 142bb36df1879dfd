package sqlrec

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Cast is a coercion rule applied to an attribute whenever a value is
// assigned to it.
type Cast uint8

// Cast rules. CastNone keeps values as they are.
const (
	CastNone Cast = iota
	CastInt
	CastFloat
	CastString
	CastBool
	CastTime
	CastBytes
	CastJSON
)

// Casts maps attribute names to coercion rules.
type Casts map[string]Cast

var castNames = map[string]Cast{
	"":         CastNone,
	"none":     CastNone,
	"int":      CastInt,
	"integer":  CastInt,
	"float":    CastFloat,
	"double":   CastFloat,
	"real":     CastFloat,
	"str":      CastString,
	"string":   CastString,
	"text":     CastString,
	"bool":     CastBool,
	"boolean":  CastBool,
	"time":     CastTime,
	"date":     CastTime,
	"datetime": CastTime,
	"bytes":    CastBytes,
	"blob":     CastBytes,
	"json":     CastJSON,
}

// ParseCast returns a Cast by its name, e.g. "int", "boolean" or "datetime".
func ParseCast(name string) (Cast, error) {
	c, ok := castNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return CastNone, errors.Wrapf(ErrUnknownCast, "%q", name)
	}
	return c, nil
}

func (c Cast) String() string {
	switch c {
	case CastInt:
		return "int"
	case CastFloat:
		return "float"
	case CastString:
		return "string"
	case CastBool:
		return "bool"
	case CastTime:
		return "time"
	case CastBytes:
		return "bytes"
	case CastJSON:
		return "json"
	}
	return "none"
}

/*
Apply coerces v according to the rule.

Nil values are kept as nil so that SQL NULL survives a round trip.
Integers become int64, floats become float64, times become time.Time.
CastJSON decodes strings and byte slices, other values are kept as is.
*/
func (c Cast) Apply(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	// Drivers often hand out text as raw bytes
	if b, ok := v.([]byte); ok && c != CastBytes && c != CastNone {
		v = string(b)
	}
	switch c {
	case CastInt:
		// cast.ToInt64E reads "010" as octal
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			return n, nil
		}
		return cast.ToInt64E(v)
	case CastFloat:
		return cast.ToFloat64E(v)
	case CastString:
		return cast.ToStringE(v)
	case CastBool:
		return cast.ToBoolE(v)
	case CastTime:
		return cast.ToTimeE(v)
	case CastBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, errors.Errorf("unable to cast %#v of type %T to []byte", v, v)
	case CastJSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, errors.WithStack(err)
		}
		return out, nil
	}
	return v, nil
}
