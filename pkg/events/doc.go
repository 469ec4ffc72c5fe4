/*
Package events is the coordinator's in-memory event bus.

The coordinator publishes an Event for every step it takes against a cube:
nodes launched, the cube becoming ready, peer tables distributed, floods
seeded and converged, broadcasts delivered, value gathers completed and the
cube stopped. The CLI's --watch flag subscribes and prints them as they
happen.

Publish hands the event to a buffered channel; the distribution loop copies
it to every subscriber's buffer and drops it for subscribers that are full.
Events get a UUID when they are published without one.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for e := range sub {
			fmt.Println(e.Type, e.Message)
		}
	}()
*/
package events
