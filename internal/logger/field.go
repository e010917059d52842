package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// Field is a typed key/value attached to a log event.
type Field struct {
	key   string
	kind  fieldKind
	str   string
	num   int64
	float float64
	flag  bool
	err   error
	any   interface{}
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindError
	kindDuration
	kindAny
)

func String(key, value string) Field          { return Field{key: key, kind: kindString, str: value} }
func Int(key string, value int) Field         { return Field{key: key, kind: kindInt, num: int64(value)} }
func Float(key string, value float64) Field   { return Field{key: key, kind: kindFloat, float: value} }
func Bool(key string, value bool) Field       { return Field{key: key, kind: kindBool, flag: value} }
func Error(err error) Field                   { return Field{key: "error", kind: kindError, err: err} }
func Any(key string, value interface{}) Field { return Field{key: key, kind: kindAny, any: value} }

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field {
	return Field{key: key, kind: kindDuration, num: d.Milliseconds()}
}

func (f Field) addTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.key, f.str)
	case kindInt, kindDuration:
		e.Int64(f.key, f.num)
	case kindFloat:
		e.Float64(f.key, f.float)
	case kindBool:
		e.Bool(f.key, f.flag)
	case kindError:
		e.Err(f.err)
	default:
		e.Interface(f.key, f.any)
	}
}

func (f Field) addToContext(c zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return c.Str(f.key, f.str)
	case kindInt, kindDuration:
		return c.Int64(f.key, f.num)
	case kindFloat:
		return c.Float64(f.key, f.float)
	case kindBool:
		return c.Bool(f.key, f.flag)
	case kindError:
		return c.AnErr(f.key, f.err)
	default:
		return c.Interface(f.key, f.any)
	}
}
