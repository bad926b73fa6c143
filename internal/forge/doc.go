// Package forge writes content files to the hosted repository through the
// GitHub contents API.
//
// Writes are guarded by the blob hash the forge reports for the current file:
// a stale hash is rejected upstream and surfaced as ErrStaleWrite without retry.
package forge
