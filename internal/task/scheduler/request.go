package scheduler

import (
	"math"
	"strings"
	"time"
)

// Func is the shape every scheduled callback has: an optional invocation
// context (self) and the job's argument list.
type Func func(self any, args []any) error

// Callback is an identity-comparable handle around a Func. Cancel matches
// jobs by handle, so keep the pointer returned by NewCallback if you intend
// to cancel by callback.
type Callback struct {
	fn Func
}

// NewCallback wraps fn in a new handle. It returns nil for a nil fn.
func NewCallback(fn Func) *Callback {
	if fn == nil {
		return nil
	}
	return &Callback{fn: fn}
}

// Call invokes the wrapped function.
func (c *Callback) Call(self any, args []any) error { return c.fn(self, args) }

func (c *Callback) matches(j *Job) bool { return j.cb == c }

// When is a millisecond amount given either as a number or as a duration
// string understood by ParseMs. The zero value is "not given".
type When struct {
	ms   int64
	text string
	kind whenKind
}

type whenKind uint8

const (
	whenUnset whenKind = iota
	whenMillis
	whenText
)

// Millis is a numeric millisecond amount.
func Millis(ms int64) When { return When{ms: ms, kind: whenMillis} }

// Every converts a time.Duration, truncated to whole milliseconds.
func Every(d time.Duration) When { return Millis(d.Milliseconds()) }

// Text is a duration string such as "2h" or "1d 30m".
func Text(s string) When { return When{text: s, kind: whenText} }

// IsSet reports whether a value was given.
func (w When) IsSet() bool { return w.kind != whenUnset }

// Ms resolves the amount. Unset values resolve to 0 and false.
func (w When) Ms() (int64, bool, error) {
	switch w.kind {
	case whenMillis:
		return w.ms, true, nil
	case whenText:
		ms, err := ParseMs(w.text)
		if err != nil {
			return 0, false, err
		}
		return ms, true, nil
	default:
		return 0, false, nil
	}
}

func (w When) String() string {
	switch w.kind {
	case whenMillis:
		return time.Duration(w.ms * int64(time.Millisecond)).String()
	case whenText:
		return strings.TrimSpace(w.text)
	default:
		return ""
	}
}

// WhenFrom converts an untyped decoded value (JSON/YAML) to a When.
// Strings become Text, numbers become Millis, nil stays unset.
func WhenFrom(v any) (When, error) {
	switch x := v.(type) {
	case nil:
		return When{}, nil
	case string:
		return Text(x), nil
	case int:
		return Millis(int64(x)), nil
	case int64:
		return Millis(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return When{}, invalidArg("at not a number")
		}
		return Millis(int64(math.Round(x))), nil
	default:
		return When{}, invalidArg("at not a number")
	}
}

// ArgsFrom converts an untyped decoded value to an argument list.
// nil yields an empty list; anything but a sequence is rejected.
func ArgsFrom(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	default:
		return nil, invalidArg("args not an array")
	}
}

// Call is the descriptor form of a schedule request.
type Call struct {
	Func   *Callback
	Args   []any
	At     When
	Repeat When
	Self   any

	// Name is an optional label used in logs, events and snapshots.
	Name string
}

// request is the normalized form both entry points build.
type request struct {
	cb     *Callback
	args   []any
	at     int64
	repeat int64
	self   any
	name   string
}

func (c Call) normalize(addToAt int64) (request, error) {
	if c.Func == nil || c.Func.fn == nil {
		return request{}, invalidArg("func not a function")
	}
	at, ok, err := c.At.Ms()
	if err != nil {
		return request{}, err
	}
	if !ok {
		return request{}, invalidArg("at not a number")
	}
	repeat, _, err := c.Repeat.Ms()
	if err != nil {
		return request{}, err
	}
	if repeat < 0 {
		repeat = 0
	}
	args := c.Args
	if args == nil {
		args = []any{}
	}
	return request{
		cb:     c.Func,
		args:   args,
		at:     addSat(at, addToAt),
		repeat: repeat,
		self:   c.Self,
		name:   strings.TrimSpace(c.Name),
	}, nil
}
