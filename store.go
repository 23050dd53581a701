package doctable

import (
	"context"
)

// CollectionID names a collection within a database.
type CollectionID struct {
	Database   string
	Collection string
}

func (id CollectionID) String() string {
	return id.Database + "." + id.Collection
}

func (id CollectionID) IsZero() bool {
	return id.Database == "" && id.Collection == ""
}

// Store is the document store boundary.
//
// ReplaceAll deletes every document of the collection and inserts docs,
// creating the collection if needed. The store assigns fresh IDField values;
// callers do not get atomicity beyond what the implementation provides.
// Failures are reported as *StoreError.
type Store interface {
	Databases(ctx context.Context) ([]string, error)
	Collections(ctx context.Context, db string) ([]string, error)
	LoadAll(ctx context.Context, id CollectionID) ([]Document, error)
	ReplaceAll(ctx context.Context, id CollectionID, docs []Document) error
}
