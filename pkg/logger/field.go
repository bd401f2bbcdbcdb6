package logger

import (
	"time"

	"github.com/rs/zerolog"
)

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindError
	kindAny
)

// Field is a typed key/value pair.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	flt  float64
	err  error
	any  interface{}
}

func (f Field) addTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.str)
	case kindInt:
		e.Int64(f.Key, f.num)
	case kindFloat:
		e.Float64(f.Key, f.flt)
	case kindBool:
		e.Bool(f.Key, f.num != 0)
	case kindError:
		e.AnErr(f.Key, f.err)
	default:
		e.Interface(f.Key, f.any)
	}
}

func (f Field) value() interface{} {
	switch f.kind {
	case kindString:
		return f.str
	case kindInt:
		return f.num
	case kindFloat:
		return f.flt
	case kindBool:
		return f.num != 0
	case kindError:
		if f.err == nil {
			return nil
		}
		return f.err.Error()
	default:
		return f.any
	}
}

func String(key, v string) Field { return Field{Key: key, kind: kindString, str: v} }

func Int(key string, v int) Field { return Field{Key: key, kind: kindInt, num: int64(v)} }

func Int64(key string, v int64) Field { return Field{Key: key, kind: kindInt, num: v} }

func Float64(key string, v float64) Field { return Field{Key: key, kind: kindFloat, flt: v} }

func Bool(key string, v bool) Field {
	f := Field{Key: key, kind: kindBool}
	if v {
		f.num = 1
	}
	return f
}

// Duration logs whole milliseconds.
func Duration(key string, v time.Duration) Field { return Int64(key, v.Milliseconds()) }

func Error(err error) Field { return Field{Key: "error", kind: kindError, err: err} }

func Any(key string, v interface{}) Field { return Field{Key: key, kind: kindAny, any: v} }
