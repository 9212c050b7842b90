/*
Package events provides an in-memory pub/sub broker for catalog and engine
lifecycle notifications.

Broker fans out Event values published by catalog DDL operations and the
flow runtime (table/view/flow create and drop, checkpoint advance, version
GC, aborted transactions) to any number of Subscribers. Delivery is
best-effort: a subscriber with a full buffer skips the event rather than
blocking the publisher.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for event := range sub {
			log.Info(event.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventFlowCreated, Message: "flow created"})
*/
package events
