package core

// Entry is one block yielded by All: its index, content, and signature.
type Entry struct {
	Index     uint64
	Content   []byte
	Signature Signature
}

// All returns a sequence that yields every appended block in order,
// stopping at the first absent index. This is the Go-native equivalent
// of the original source's CoreIterator, which polled Get sequentially
// and terminated at the first miss (SPEC_FULL.md §4.10).
func (c *Core) All() func(yield func(Entry) bool) {
	return func(yield func(Entry) bool) {
		for i := uint64(0); i < c.Len(); i++ {
			content, sig, err := c.Get(i)
			if err != nil {
				return
			}
			if !yield(Entry{Index: i, Content: content, Signature: sig}) {
				return
			}
		}
	}
}
