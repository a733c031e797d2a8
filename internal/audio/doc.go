// Package audio converts native capture blobs into the canonical
// uncompressed WAV container used for voice uploads. It implements the
// float-sample to 16-bit PCM encoding path with byte-exact headers, a
// best-effort fallback for undecodable captures, and WAV inspection
// helpers used by playback and test fixtures.
package audio
