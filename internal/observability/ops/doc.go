// Package ops serves the operations HTTP endpoints: /healthz, Prometheus
// /metrics and net/http/pprof under a configurable prefix.
package ops
