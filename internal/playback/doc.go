// Package playback plays reply audio. A Controller owns one decoded WAV
// track at a time and drives a Renderer through the Unloaded, Ready,
// Playing, Paused, and Ended states, with fractional seeking, immediate
// volume changes, and a fixed set of playback rates implemented by
// resampling the track.
package playback
