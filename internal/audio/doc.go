// Package audio plays synthesized speech through a single reusable output.
//
// Encoded payloads (MP3 and WAV from the remote service) and raw 16-bit PCM
// from the on-device engine are decoded with beep, resampled to the output
// rate and written to an oto player. Starting a new utterance supersedes the
// one still playing.
package audio
