/*
Package orm is the minimal data layer the signal bus listens to.

Store persists entities and fires the native lifecycle signals: post-save after a
row is written and pre-delete before it is removed, both inside the write
transaction so a failing synchronous handler aborts the write. Native bulk
operations on QuerySet fire nothing; Manager hands out SignalQuerySet, which
emits one bulk-update signal per Update call.

Bulk creation is not signalled. BulkCreate reports only how many rows it wrote,
not their identifiers, so no per-entity event can be built for it.
*/
package orm
