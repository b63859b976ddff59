// Package sanitizer normalizes user-supplied identifiers before they reach
// storage or logs.
package sanitizer
