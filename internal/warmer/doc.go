// Package warmer defines the core types shared by the cache warming pipeline:
// the resources under test, their cache classification, and the interfaces
// connecting the registry, the fetch transport and the workers.
package warmer
