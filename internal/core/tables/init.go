// Package tables registers the schema descriptors of every admin lookup
// table with the core registry. Import it for its side effects.
package tables

// This file exists to provide a single import point.
// Each table file uses init() to register its schema.
