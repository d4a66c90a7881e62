// Package store defines the two storage collaborators of the engine, a sorted
// key-value table with conditional writes and a content-addressed blob store,
// with implementations on badger and in memory.
package store
