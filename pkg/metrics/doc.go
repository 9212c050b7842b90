/*
Package metrics defines and registers the Prometheus metrics exposed by the
storage engine, flow runtime and version-drop worker.

Gauges (CommittedVersion, ConsumerLag, CatalogObjectsTotal, ...) are kept
current by Collector, which samples the store, catalog and CDC checkpoints
on a 15 second tick. Counters and histograms (TransactionsTotal,
FlowProcessDuration, VersionsDroppedTotal, ...) are updated inline by the
components that own those events.

	go metrics.NewCollector(store, txnMgr, cat, consumer).Start()
	http.Handle("/metrics", metrics.Handler())
*/
package metrics
