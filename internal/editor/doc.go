// Package editor holds the client-side editing session: live page documents,
// the per-page pending-change buffer, history restoration, and the
// interactive shell that drives them.
//
// A Session owns one live document per open page. Apply records a history
// snapshot, applies the operation locally and appends it to the page's
// pending log. SaveChanges flushes the whole log in one request and clears it
// only when the server confirms the save. Restorations from the history
// manager are persisted as a single replace-all-sections operation.
package editor
