// Package graph is a unit-of-work client for a remote note graph.
//
// A Session hands out Note, Attribute and Branch entities that can be read
// and mutated locally. Every mutation is tracked by the entity's FieldModel
// and reflected in the entity's State; entities that are not clean live in
// the session Cache's dirty set. Flush gathers the dirty entities and their
// dirty dependencies, orders them topologically and issues one remote call
// per entity through a Driver.
//
// A Session is not safe for concurrent use.
package graph
