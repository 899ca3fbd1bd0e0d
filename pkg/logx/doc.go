// Package logx configures adsposter's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional operator chat sink (min-level + rate limiting)
//   - LineWriter for streaming plain run output to a line sink
package logx
