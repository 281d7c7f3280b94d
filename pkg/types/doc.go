// Package types defines the remote store interfaces, the wire records for
// notes, attributes and branches, entity states, and the standard errors
// shared by the graph and the store backends.
package types
