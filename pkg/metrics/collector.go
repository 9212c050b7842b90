package metrics

import (
	"context"
	"time"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/txn"
)

// Collector periodically samples storage, catalog and CDC-consumer state
// into the package's gauges. Counters and histograms are updated inline by
// the components that own those events and are not touched here.
type Collector struct {
	store    *mvcc.Store
	txnMgr   *txn.Manager
	catalog  *catalog.Catalog
	consumer mvcc.ConsumerId

	stopCh chan struct{}
}

// NewCollector creates a collector for the given store, transaction
// manager and catalog. consumer is the flow engine's CDC consumer id,
// sampled for checkpoint lag.
func NewCollector(store *mvcc.Store, txnMgr *txn.Manager, cat *catalog.Catalog, consumer mvcc.ConsumerId) *Collector {
	return &Collector{
		store:    store,
		txnMgr:   txnMgr,
		catalog:  cat,
		consumer: consumer,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx := context.Background()

	committed := c.store.CommittedVersion()
	CommittedVersion.Set(float64(committed))

	checkpoint, err := c.store.GetCheckpoint(ctx, c.consumer)
	if err == nil {
		ConsumerCheckpoint.WithLabelValues(string(c.consumer)).Set(float64(checkpoint))
		lag := int64(committed) - int64(checkpoint)
		if lag < 0 {
			lag = 0
		}
		ConsumerLag.WithLabelValues(string(c.consumer)).Set(float64(lag))
	}

	c.collectCatalogMetrics(ctx)
}

func (c *Collector) collectCatalogMetrics(ctx context.Context) {
	tx, err := c.txnMgr.Begin(ctx, txn.SSI)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	kinds := []catalog.Kind{
		catalog.KindNamespace,
		catalog.KindTable,
		catalog.KindView,
		catalog.KindRingBuffer,
		catalog.KindDictionary,
		catalog.KindSequence,
		catalog.KindIndex,
		catalog.KindFlow,
		catalog.KindFlowNode,
	}
	for _, kind := range kinds {
		objs, err := c.catalog.ListByKind(ctx, tx, kind)
		if err != nil {
			continue
		}
		CatalogObjectsTotal.WithLabelValues(kind.String()).Set(float64(len(objs)))
	}
}
