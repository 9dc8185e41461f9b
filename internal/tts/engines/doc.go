// Package engines contains the synthesis backends: the HTTP client for the
// remote speech service and the Piper-based on-device engine.
package engines
