package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/event"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func documentKey(collection, id string) string {
	return fmt.Sprintf("doc:v1:%s:%s", collection, id)
}

// ChangeStream returns the Redis Stream that carries change events for a collection.
func ChangeStream(collection string) string {
	return fmt.Sprintf("changes:v1:%s", collection)
}

// DLQStream returns the Dead Letter Queue stream for a collection's change events.
func DLQStream(collection string) string {
	return fmt.Sprintf("dlq:v1:%s", collection)
}

// EventSource returns the source attribute stamped on a collection's change events.
func EventSource(collection string) string {
	return fmt.Sprintf("//triggerbench/collections/%s", collection)
}

// maxDocumentTxRetries bounds optimistic retries when concurrent writers
// touch the same document.
const maxDocumentTxRetries = 100

// ErrDocumentContention is returned when a document write keeps losing the
// optimistic lock to concurrent writers.
var ErrDocumentContention = errors.New("document write contended")

// PutDocument replaces a document and appends a change event describing the
// write (old and new value) to the collection's change stream. The old value
// is read under WATCH and the write plus the event append commit in one
// MULTI/EXEC, so concurrent writers to the same id each see the value the
// previous writer committed.
func (c *Client) PutDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	key := documentKey(collection, id)

	for i := 0; i < maxDocumentTxRetries; i++ {
		var eventID string
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			var err error
			eventID, err = c.putDocumentTx(ctx, tx, collection, id, fields)
			return err
		}, key)
		if err == nil {
			return eventID, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("failed to write document %s: %w", key, ErrDocumentContention)
}

func (c *Client) putDocumentTx(ctx context.Context, tx *redis.Tx, collection, id string, fields map[string]any) (string, error) {
	key := documentKey(collection, id)
	now := time.Now()
	payload := event.DocumentEventData{}

	oldRaw, err := tx.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// New document
	case err != nil:
		return "", fmt.Errorf("failed to read document %s: %w", key, err)
	default:
		var old event.Document
		if err := json.Unmarshal([]byte(oldRaw), &old); err != nil {
			return "", fmt.Errorf("failed to parse document %s: %w", key, err)
		}
		payload.OldValue = &old
	}

	doc, err := event.NewDocument(fmt.Sprintf("%s/%s", collection, id), fields, now)
	if err != nil {
		return "", err
	}
	if payload.OldValue != nil && payload.OldValue.CreateTime != "" {
		doc.CreateTime = payload.OldValue.CreateTime
	} else {
		doc.CreateTime = doc.UpdateTime
	}
	payload.Value = doc

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	data, err := payload.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode change event: %w", err)
	}

	eventID := uuid.NewString()
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, docJSON, 0)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: ChangeStream(collection),
			MaxLen: c.streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"eventId": eventID,
				"type":    event.TypeDocumentWritten,
				"source":  EventSource(collection),
				"time":    now.UTC().Format(time.RFC3339Nano),
				"data":    string(data),
			},
		})
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", key, err)
	}

	return eventID, nil
}

// Document returns a stored document, or nil if it does not exist.
func (c *Client) Document(ctx context.Context, collection, id string) (*event.Document, error) {
	raw, err := c.client.Get(ctx, documentKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc event.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &doc, nil
}
