// Package otel reserves the observer slot an OpenTelemetry-backed tracer
// would fill. It currently ships only Nop, a dependency-free
// nursery.Observer, so callers can wire the hook interface today and swap in
// a real tracing implementation without touching call sites.
package otel
