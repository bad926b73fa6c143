// Package history keeps per-page undo and redo stacks of whole-page snapshots.
//
// Snapshots are deep copies on the way in and on the way out, so neither the
// stacks nor the caller can alias each other's section trees. Restoring a
// snapshot is delegated to a Restorer; if the Restorer fails, both stacks of
// that page are rolled back to their state before the request so history and
// persisted content never disagree.
package history
