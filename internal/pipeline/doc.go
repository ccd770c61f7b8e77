// Package pipeline drives finalized audio segments through translation and speech.
// Segments are translated strictly in order; speech for each result runs in the
// background so capture and translation never wait on playback.
package pipeline
