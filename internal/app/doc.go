// Package app wires the license service together: configuration, logging,
// the license authority and its resilient store, session tokens, the HTTP
// surface, and the WebSocket hub. It owns startup order and graceful
// shutdown.
package app
