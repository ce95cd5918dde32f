// Package cell defines AtomicPersistentCell: durable, atomic get/set storage
// for a single value. Concrete backends live in subpackages --
// pkg/cell/boltcell (bbolt-backed, the default) and pkg/cell/filecell
// (tmp-file-then-rename against a plain filesystem path) -- so that callers
// depend only on the Cell interface.
package cell
