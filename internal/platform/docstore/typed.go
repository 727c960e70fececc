package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Decode unmarshals a document's data into a new T.
func Decode[T any](doc *Document) (*T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return &v, nil
}

// GetAs reads collection/id into a T.
func GetAs[T any](ctx context.Context, p Port, collection, id string) (*T, error) {
	doc, err := p.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return Decode[T](doc)
}

// SetAs writes v to collection/id.
func SetAs[T any](ctx context.Context, p Port, collection, id string, v *T, merge bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	return p.Set(ctx, collection, id, data, merge)
}

// UpdateAs runs an atomic read-modify-write on collection/id. fn receives the
// current value (nil when absent) and returns the value to store, or nil to
// leave the document untouched.
func UpdateAs[T any](ctx context.Context, p Port, collection, id string, fn func(current *T) (*T, error)) (*T, error) {
	doc, err := p.RunAtomicUpdate(ctx, collection, id, func(current *Document) (json.RawMessage, error) {
		var cur *T
		if current != nil {
			decoded, err := Decode[T](current)
			if err != nil {
				return nil, err
			}
			cur = decoded
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return Decode[T](doc)
}

// ListAs decodes every document of a collection.
func ListAs[T any](ctx context.Context, p Port, collection string) ([]*T, error) {
	docs, err := p.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WatchFunc subscribes to target and maps every snapshot through fn onto a new
// channel. The returned stop function closes the subscription and the channel;
// the forwarding goroutine never outlives it.
func WatchFunc[E any](ctx context.Context, p Port, target Target, fn func(Snapshot) E) (<-chan E, func(), error) {
	sub, err := p.Subscribe(ctx, target)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan E, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for snap := range sub.C {
			select {
			case out <- fn(snap):
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		sub.Close()
	}
	return out, stop, nil
}
