package dom

import (
	"github.com/google/btree"
)

// DocumentSet is an ordered set of documents keyed by document id.
//
// Iteration order is ascending by id. The locking layer relies on this:
// acquiring per-document latches in a deterministic total order is what
// keeps concurrent whole-set lock requests deadlock free.
type DocumentSet struct {
	tree *btree.BTreeG[*Document]
}

func documentLess(a, b *Document) bool {
	return a.ID() < b.ID()
}

// NewDocumentSet creates an empty document set.
func NewDocumentSet() *DocumentSet {
	return &DocumentSet{
		tree: btree.NewG[*Document](2, documentLess),
	}
}

// Add inserts doc into the set, replacing any document with the same id.
func (s *DocumentSet) Add(doc *Document) {
	s.tree.ReplaceOrInsert(doc)
}

// Contains reports whether a document with the given id is in the set.
func (s *DocumentSet) Contains(id uint32) bool {
	_, ok := s.tree.Get(&Document{id: id})
	return ok
}

// Len returns the number of documents in the set.
func (s *DocumentSet) Len() int {
	return s.tree.Len()
}

// Ascend visits every document in ascending id order until fn returns false.
func (s *DocumentSet) Ascend(fn func(doc *Document) bool) {
	s.tree.Ascend(func(doc *Document) bool {
		return fn(doc)
	})
}

// Documents returns the documents in ascending id order.
func (s *DocumentSet) Documents() []*Document {
	docs := make([]*Document, 0, s.tree.Len())
	s.tree.Ascend(func(doc *Document) bool {
		docs = append(docs, doc)
		return true
	})
	return docs
}
