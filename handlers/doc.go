/*
Package handlers contains the side-effect handlers attached to data-layer signals:
EmailHandler publishes notifications for test-management entities and
ChangeLogHandler snapshots every changed entity into the change log.

Registration is explicit:

	b := signalbus.New(logger)
	pool := worker.New(worker.Options{Workers: 4, QueueSize: 64})
	pool.Start()
	ds, err := handlers.RegisterAll(b, pool, handlers.Deps{Publisher: pub, Snapshots: store})
*/
package handlers
