// Package query defines the shared types exchanged between the capture,
// encoding, submission, and playback layers: submission kinds, the failure
// taxonomy, and the normalized response every backend reply collapses into.
package query
