/*
Package signalbus routes data-layer lifecycle signals to handlers.
It keeps an explicit subscription table keyed by (kind, entity type), classifies each
signal into a create/update/delete operation and invokes handlers either inline or on
a worker pool.
*/
package signalbus
