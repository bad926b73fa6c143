// Package handlers implements the content, sync and monitoring HTTP endpoints.
//
// Handlers decode requests, delegate to services and write JSON. Failures are
// written through the HTTPErrorAdapter so status codes follow error categories.
package handlers
