// Package record manages voice recording sessions. A Session drives a
// capture Device through the Idle, Recording, Paused, and Stopped states,
// accumulates native audio chunks in delivery order, enforces the
// configured duration ceiling, and asks for confirmation when a stop
// arrives suspiciously soon after the recording started.
package record
