// Package response normalizes backend reply payloads. Deployed backends
// answer in several envelope shapes; Normalize tries each known shape in
// a fixed priority order and fails closed with an advisory when none
// match, so callers never render raw JSON to the user.
package response
