// Package server hosts the Fiber HTTP service and the glue that turns
// intercepted site requests into dispatch engine calls. It owns the
// middleware chain (recover, request IDs), the rule table assembly in
// BuildEngine, the upstream-rewriting HTTP client, and the in-process
// client hub that renders claim/navigate onto polling window clients.
// Keep exports narrow and accept explicit dependencies so cmd wiring and
// tests can inject fakes.
package server
