// Package resilience provides the failure-handling primitives shared by
// callers of unreliable downstream dependencies: a tri-state circuit
// breaker and a retrying invoker with exponential backoff and jitter.
//
// The two are independent and composable. InvokeThrough runs a full retry
// loop inside a single breaker execution, so an open circuit fails fast
// before any attempt is made; retries only apply to genuine downstream
// failures, never to a breaker that is already protecting the system.
package resilience
