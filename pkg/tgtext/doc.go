// Package tgtext prepares outbound text for Telegram:
//   - Whitespace-aware splitting into size-limited chunks
//   - Greedy keyboard row layout under a per-row width budget
//   - A Markdown-subset to Telegram-HTML formatter
//
// Design goals:
//   - Rejoining chunks reproduces the input byte for byte
//   - No chunk or row ever exceeds its limit, whatever the input
//   - Formatting failures stay recoverable (callers can fall back to
//     the unformatted original)
package tgtext
