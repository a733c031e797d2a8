// Package assistant is the top-level facade over recording, encoding,
// submission, and playback. It owns at most one live recording session
// and one playback controller, fills query hints from configuration, and
// records metrics for every operation.
package assistant
