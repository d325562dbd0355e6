// Package actions builds the callbacks that configured jobs run.
package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"offsetcron/internal/task/scheduler"
	logx "offsetcron/pkg/logx"
	"offsetcron/pkg/systemdmanager"
)

const (
	Log  = "log"
	Exec = "exec"
	Unit = "unit"
)

// UnitRunner runs systemd unit jobs. *systemdmanager.Manager implements it.
type UnitRunner interface {
	Do(ctx context.Context, op systemdmanager.Op, unit string) error
}

// DefaultTimeout bounds an exec action when the job gives none.
const DefaultTimeout = 10 * time.Minute

// outputTail is how much of a command's combined output is kept.
const outputTail = 4 << 10

// Spec describes what a job does when it fires.
type Spec struct {
	Job     string
	Action  string
	Message string
	Command string
	// Timeout <= 0 means DefaultTimeout.
	Timeout time.Duration
	// Env is appended to the process environment of exec actions.
	Env []string

	// Unit and Op select the systemd job of a unit action.
	Unit  string
	Op    string
	Units UnitRunner
}

// New returns the callback for sp. ctx bounds every exec run; cancel it on
// shutdown to kill running commands.
func New(ctx context.Context, sp Spec, log logx.Logger) (*scheduler.Callback, error) {
	log = log.With(logx.String("job", sp.Job))
	switch strings.ToLower(strings.TrimSpace(sp.Action)) {
	case Log:
		return scheduler.NewCallback(logAction(sp, log)), nil
	case Exec:
		if strings.TrimSpace(sp.Command) == "" {
			return nil, errors.New("exec action needs a command")
		}
		return scheduler.NewCallback(execAction(ctx, sp, log)), nil
	case Unit:
		op, err := systemdmanager.ParseOp(sp.Op)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(sp.Unit) == "" {
			return nil, errors.New("unit action needs a unit")
		}
		if sp.Units == nil {
			return nil, errors.New("unit action needs a unit runner")
		}
		return scheduler.NewCallback(unitAction(ctx, sp, op, log)), nil
	default:
		return nil, fmt.Errorf("unknown action %q", sp.Action)
	}
}

func logAction(sp Spec, log logx.Logger) scheduler.Func {
	msg := sp.Message
	if msg == "" {
		msg = "job fired"
	}
	return func(self any, args []any) error {
		if len(args) > 0 {
			log.Info(msg, logx.Any("args", args))
		} else {
			log.Info(msg)
		}
		return nil
	}
}

func execAction(ctx context.Context, sp Spec, log logx.Logger) scheduler.Func {
	timeout := sp.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func(self any, args []any) error {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		argv := Strings(args)
		cmd := exec.CommandContext(rctx, sp.Command, argv...)
		cmd.Env = append(os.Environ(), "OFFSETCRON_JOB="+sp.Job)
		cmd.Env = append(cmd.Env, sp.Env...)
		out := &tailBuffer{max: outputTail}
		cmd.Stdout = out
		cmd.Stderr = out
		// Children that inherit the pipes must not hold Run open past the timeout.
		cmd.WaitDelay = 5 * time.Second

		start := time.Now()
		err := cmd.Run()
		took := time.Since(start)
		fields := []logx.Field{
			logx.String("command", sp.Command),
			logx.Duration("took", took),
			logx.String("output_size", humanize.Bytes(uint64(out.total))),
		}
		if err != nil {
			if rctx.Err() == context.DeadlineExceeded {
				err = fmt.Errorf("%s: timed out after %s", sp.Command, timeout)
			} else {
				err = fmt.Errorf("%s: %w", sp.Command, err)
			}
			if tail := strings.TrimSpace(out.String()); tail != "" {
				err = fmt.Errorf("%w: %s", err, lastLine(tail))
			}
			return err
		}
		log.Info("command finished", fields...)
		if tail := strings.TrimSpace(out.String()); tail != "" {
			log.Debug("command output", logx.String("output", tail))
		}
		return nil
	}
}

func unitAction(ctx context.Context, sp Spec, op systemdmanager.Op, log logx.Logger) scheduler.Func {
	timeout := sp.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	unit := systemdmanager.UnitName(sp.Unit)
	return func(self any, args []any) error {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		start := time.Now()
		if err := sp.Units.Do(rctx, op, unit); err != nil {
			return err
		}
		log.Info("unit job finished", logx.String("unit", unit), logx.String("op", string(op)), logx.Duration("took", time.Since(start)))
		return nil
	}
}

// Strings renders an argument list as command-line words.
func Strings(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case string:
			out = append(out, v)
		case nil:
			out = append(out, "")
		case float64:
			out = append(out, humanize.Ftoa(v))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max   int
	total int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.total += len(p)
	if len(p) >= t.max {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.max:])
		return len(p), nil
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return len(p), nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
