/*
Package observability exposes Prometheus metrics for the Parley dialog engine.

Metrics are collected through the engine's hook pipelines and error handlers, so
attaching them never changes how a turn is processed:

	m, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	m.Attach(engine)
	proc := m.Instrument(engine) // records turn latency
*/
package observability
