// Package audio cuts the microphone stream into fixed-duration float32 WAV
// segments on disk and plays synthesized mp3 speech.
package audio
