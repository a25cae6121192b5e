// Package reqcore implements a transport-agnostic request serving core: a
// lifecycle state machine, a route registry with pattern matching, an ordered
// middleware chain folded once at startup, and a dispatcher that isolates
// handler failures behind a total error-to-response mapping. The core operates
// on parsed Request/Response values; HTTP framing, TLS, and persistence belong
// to the hosting process. Hosts register routes and stages while the server is
// in the created state, call Start with a validated config, feed requests
// through Dispatch, and read Health/Metrics from monitoring glue. Keep exports
// narrow and accept explicit dependencies so embedding stays cheap.
package reqcore
