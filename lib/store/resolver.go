package store

// ConflictResolver picks the winner between two entries for the same key.
// Implementations must be pure and must always return one of their arguments.
type ConflictResolver interface {
	Resolve(a, b Entry) Entry
}

// ResolverFunc adapts a function to the ConflictResolver interface.
type ResolverFunc func(a, b Entry) Entry

func (f ResolverFunc) Resolve(a, b Entry) Entry {
	return f(a, b)
}

// LastWriterWins resolves conflicts by version. On equal versions the first
// argument wins, which makes the tie case depend on argument order.
var LastWriterWins ConflictResolver = ResolverFunc(Resolve)

// Resolve is the last-writer-wins rule used by LastWriterWins.
func Resolve(a, b Entry) Entry {
	switch a.Version.Compare(b.Version) {
	case Before:
		return b
	case After:
		return a
	default:
		return a
	}
}
