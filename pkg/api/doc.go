// Package api defines the vendor-neutral conversation model shared by all
// converser components: the six message variants, multimodal content parts,
// conversation lifecycle events, the line-oriented record codec used by the
// storage layer, and the error taxonomy.
//
// Messages are immutable value objects. Nothing in this package mutates a
// Message after construction; components that need to change content during
// streaming build a new Message and replace their working reference.
package api
