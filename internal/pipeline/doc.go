// Package pipeline connects caption observation to speech. A Coordinator is
// the dispatch context: it filters snapshots, guards the single-flight slot
// and calls the backend. A Session is the observer context: it forwards
// snapshots and plays the audio the Coordinator sends back. The two exchange
// Messages, the same ones the WebSocket bridge carries.
package pipeline
