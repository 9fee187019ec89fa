// Package search adapts the Typesense document client to the shape the gateway's Dispatcher calls: one document per
// persisted message, never on the broadcast critical path's correctness.
package search

import (
	"context"

	"github.com/miuchi-chat/miuchi/internal/gateway"
)

// DocumentClient performs the underlying write to the search backend. Satisfied by *typesense.Indexer.
type DocumentClient interface {
	IndexMessage(ctx context.Context, id, content, roomID, roomName, authorID, authorName, kind string, createdAt int64) error
}

// Indexer implements gateway.Indexer, translating a gateway.IndexDocument into a DocumentClient call. Its own errors
// are never fatal to a caller: the Dispatcher logs and swallows what this returns, per spec.
type Indexer struct {
	client DocumentClient
}

// NewIndexer constructs an Indexer wrapping client.
func NewIndexer(client DocumentClient) *Indexer {
	return &Indexer{client: client}
}

// IndexMessage satisfies gateway.Indexer.
func (idx *Indexer) IndexMessage(ctx context.Context, doc gateway.IndexDocument) error {
	return idx.client.IndexMessage(ctx, doc.ID, doc.Content, doc.RoomID, doc.RoomName, doc.AuthorID, doc.AuthorName, doc.Kind, doc.CreatedAt)
}
