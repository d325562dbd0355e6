// Package logx configures offsetcron's structured logging.
//
// logx.Logger wraps zerolog so that:
//   - console output stays readable (short timestamp and caller)
//   - file output is JSON lines
//   - level and sinks can be swapped on config reload
//
// The zero Logger is a no-op, so components can take one by value and
// work before logging is configured.
package logx
