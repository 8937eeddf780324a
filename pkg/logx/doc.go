// Package logx configures cdbot's structured logging.
//
// The bot logs through a small wrapper (logx.Logger) on top of zerolog so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output stays JSON-structured
//   - warn+ records can be mirrored to a Telegram ops chat (min-level + rate limit)
package logx
