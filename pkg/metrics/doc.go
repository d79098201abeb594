/*
Package metrics provides Prometheus metrics collection and exposition for the
transaction engine, the CAS, and the state/rollback engine.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for an external process (the CLI's
daemon mode, or a sidecar) to serve over HTTP; this package never opens a
listening socket itself.

# Metric groups

  - conary_engine_* — per-operation counters and duration histograms for
    install/remove/upgrade/batch/rollback, labeled by op and outcome.
  - conary_cas_* — object count, total bytes, eviction count, and Bloom
    filter false-positive rate for the content-addressable store.
  - conary_states_total / conary_rollbacks_total — state/rollback engine
    gauges and counters.
  - conary_hook_* — declarative hook and scriptlet phase timing and
    failure counts.
*/
package metrics
