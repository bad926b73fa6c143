// Package errors provides the classified error primitives shared by contentsync.
//
// Every failure that crosses a package boundary is a ClassifiedError carrying
// a category, a severity and a retry strategy. The HTTP and CLI adapters turn
// those into status codes, exit codes and log levels.
//
//	err := errors.ForgeError("contents PUT failed").
//		WithContext("path", path).
//		WithCause(cause).
//		Build()
package errors
