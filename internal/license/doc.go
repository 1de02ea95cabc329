// Package license implements the license-gated access-control core: key
// format and checksum validation, a TTL cache for validation results, the
// durable grant store, and the authority that orchestrates both to answer
// "is this client licensed right now".
//
// The package is organized as three collaborating components:
//
//   - Cache: mutex-guarded TTL map of per-client status snapshots with
//     hit/miss accounting. Entries self-expire; expiry is also re-checked
//     against the grant's own expiry instant on every read.
//   - Store: durable record of license grants keyed by client identifier,
//     backed by SQLite. Supports activation (including idempotent
//     reactivation of a previously deactivated key), deactivation, and a
//     best-effort validation touch that never fails the read path.
//   - Authority: the single entry point used by HTTP middleware, the
//     WebSocket session authorizer, and the license handlers. Handles
//     expiry-on-read by synchronously deactivating lapsed grants and
//     evicting the cache entry before reporting the negative status.
//
// Negative results (no grant, expired grant) are normal statuses carried in
// Status.Error, not Go errors; Go errors from this package indicate
// infrastructure failures.
package license
