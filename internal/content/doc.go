// Package content defines pages, sections and edit operations, and the
// YAML-backed store that applies operations to page files in the working copy.
package content
