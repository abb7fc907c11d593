package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"cohorte/api/internal/threads"
	"cohorte/api/internal/util"
)

var (
	bucketDocuments = []byte("documents")
	bucketThreads   = []byte("threads")
	bucketAnchors   = []byte("anchors")
)

// BoltStore keeps documents and comment threads in a single local file for
// the command line tools.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketThreads, bucketAnchors} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltDocument struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PutDocument inserts or replaces a document, keeping its creation time.
func (s *BoltStore) PutDocument(_ context.Context, doc Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		now := time.Now().UTC()
		record := boltDocument{Title: doc.Title, Body: doc.Body, CreatedAt: now, UpdatedAt: now}
		if existing := b.Get([]byte(doc.ID)); existing != nil {
			var prev boltDocument
			if err := json.Unmarshal(existing, &prev); err == nil {
				record.CreatedAt = prev.CreatedAt
			}
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore) GetDocument(_ context.Context, documentID string) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(documentID))
		if data == nil {
			return fmt.Errorf("document %s: %w", documentID, threads.ErrNotFound)
		}
		var record boltDocument
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode document %s: %w", documentID, err)
		}
		doc = Document{ID: documentID, Title: record.Title, Body: record.Body, CreatedAt: record.CreatedAt, UpdatedAt: record.UpdatedAt}
		return nil
	})
	return doc, err
}

func (s *BoltStore) ListDocuments(_ context.Context) ([]Document, error) {
	docs := make([]Document, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var record boltDocument
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			docs = append(docs, Document{ID: string(k), Title: record.Title, Body: record.Body, CreatedAt: record.CreatedAt, UpdatedAt: record.UpdatedAt})
			return nil
		})
	})
	return docs, err
}

func threadKey(documentID, threadID string) []byte {
	return []byte(documentID + "\x00" + threadID)
}

func anchorKey(documentID string, start, end int) []byte {
	return []byte(threads.RangeKey(documentID, start, end))
}

func (s *BoltStore) CreateThread(_ context.Context, documentID string, start, end int, text, color string) (threads.Thread, error) {
	if start < 0 || start >= end {
		return threads.Thread{}, fmt.Errorf("create thread: invalid range %d-%d", start, end)
	}
	if color == "" {
		color = threads.ColorDefault
	}
	var out threads.Thread
	err := s.db.Update(func(tx *bbolt.Tx) error {
		anchors := tx.Bucket(bucketAnchors)
		if id := anchors.Get(anchorKey(documentID, start, end)); id != nil {
			return getThread(tx, documentID, string(id), &out)
		}
		now := time.Now().UTC()
		out = threads.Thread{
			ID:              util.NewID("thr"),
			DocumentID:      documentID,
			StartOffset:     start,
			EndOffset:       end,
			HighlightedText: text,
			Comments:        []threads.Comment{},
			Color:           color,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := putThread(tx, out); err != nil {
			return err
		}
		return anchors.Put(anchorKey(documentID, start, end), []byte(out.ID))
	})
	if err != nil {
		return threads.Thread{}, err
	}
	return out, nil
}

func (s *BoltStore) GetAllThreads(_ context.Context, documentID string) ([]threads.Thread, error) {
	items := make([]threads.Thread, 0)
	prefix := []byte(documentID + "\x00")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketThreads).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t threads.Thread
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode thread %s: %w", k, err)
			}
			items = append(items, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartOffset != items[j].StartOffset {
			return items[i].StartOffset < items[j].StartOffset
		}
		return items[i].EndOffset < items[j].EndOffset
	})
	return items, nil
}

func (s *BoltStore) GetThread(_ context.Context, documentID, threadID string) (threads.Thread, error) {
	var out threads.Thread
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getThread(tx, documentID, threadID, &out)
	})
	return out, err
}

func (s *BoltStore) SaveThread(_ context.Context, thread threads.Thread) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketThreads).Get(threadKey(thread.DocumentID, thread.ID)) == nil {
			return threads.ErrNotFound
		}
		return putThread(tx, thread)
	})
}

func (s *BoltStore) DeleteThread(_ context.Context, documentID, threadID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var t threads.Thread
		if err := getThread(tx, documentID, threadID, &t); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAnchors).Delete(anchorKey(documentID, t.StartOffset, t.EndOffset)); err != nil {
			return err
		}
		return tx.Bucket(bucketThreads).Delete(threadKey(documentID, threadID))
	})
}

func getThread(tx *bbolt.Tx, documentID, threadID string, out *threads.Thread) error {
	data := tx.Bucket(bucketThreads).Get(threadKey(documentID, threadID))
	if data == nil {
		return threads.ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return nil
}

func putThread(tx *bbolt.Tx, t threads.Thread) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", t.ID, err)
	}
	return tx.Bucket(bucketThreads).Put(threadKey(t.DocumentID, t.ID), data)
}
