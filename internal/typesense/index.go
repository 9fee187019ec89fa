package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Indexer performs document-level writes against a Typesense messages collection.
type Indexer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewIndexer creates a new Typesense document indexer.
func NewIndexer(baseURL, apiKey string, timeout time.Duration) *Indexer {
	return &Indexer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// messageDoc is the JSON structure indexed in Typesense.
type messageDoc struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	RoomID     string `json:"room_id"`
	RoomName   string `json:"room_name"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Kind       string `json:"kind"`
	CreatedAt  int64  `json:"created_at"`
}

// IndexMessage adds a message document to the Typesense messages collection, retrying once on any failure (a
// transport error or a 4xx/5xx status) before giving up. The caller logs and swallows any error this returns; indexing failures never block persistence or
// broadcast.
func (idx *Indexer) IndexMessage(
	ctx context.Context,
	id, content, roomID, roomName, authorID, authorName, kind string,
	createdAt int64,
) error {
	doc := messageDoc{
		ID:         id,
		Content:    content,
		RoomID:     roomID,
		RoomName:   roomName,
		AuthorID:   authorID,
		AuthorName: authorName,
		Kind:       kind,
		CreatedAt:  createdAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal message doc: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = idx.postDocument(ctx, body)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (idx *Indexer) postDocument(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		idx.baseURL+"/collections/"+messagesCollection+"/documents", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TYPESENSE-API-KEY", idx.apiKey)

	resp, err := idx.client.Do(req)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("typesense returned status %d on index: %s", resp.StatusCode, detail)
	}

	return nil
}
