package dom

import (
	"testing"
)

func TestDocumentSet_AscendingOrder(t *testing.T) {
	set := NewDocumentSet()
	set.Add(NewDocument(30, "/db/colA/doc30.xml"))
	set.Add(NewDocument(10, "/db/colA/doc10.xml"))
	set.Add(NewDocument(20, "/db/colB/doc20.xml"))

	docs := set.Documents()
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	for i, wantID := range []uint32{10, 20, 30} {
		if docs[i].ID() != wantID {
			t.Errorf("docs[%d].ID() = %d, want %d", i, docs[i].ID(), wantID)
		}
	}
}

func TestDocumentSet_AddReplacesSameID(t *testing.T) {
	set := NewDocumentSet()
	set.Add(NewDocument(1, "/db/colA/old.xml"))
	set.Add(NewDocument(1, "/db/colA/new.xml"))

	if set.Len() != 1 {
		t.Fatalf("got %d documents, want 1", set.Len())
	}
	if uri := set.Documents()[0].URI(); uri != "/db/colA/new.xml" {
		t.Fatalf("got URI %q, want the replacement document", uri)
	}
}

func TestDocumentSet_Contains(t *testing.T) {
	set := NewDocumentSet()
	set.Add(NewDocument(7, "/db/colA/doc7.xml"))

	if !set.Contains(7) {
		t.Error("expected set to contain id 7")
	}
	if set.Contains(8) {
		t.Error("did not expect set to contain id 8")
	}
}

func TestDocumentSet_AscendStopsEarly(t *testing.T) {
	set := NewDocumentSet()
	for i := uint32(1); i <= 5; i++ {
		set.Add(NewDocument(i, "/db/colA/doc.xml"))
	}

	var visited int
	set.Ascend(func(doc *Document) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Fatalf("visited %d documents, want 3", visited)
	}
}

func TestDocumentSet_Empty(t *testing.T) {
	set := NewDocumentSet()
	if set.Len() != 0 {
		t.Fatalf("got %d, want 0", set.Len())
	}
	if docs := set.Documents(); len(docs) != 0 {
		t.Fatalf("got %v, want empty", docs)
	}
}
