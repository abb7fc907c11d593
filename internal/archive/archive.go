// Package archive writes the transcript of each analysis run to an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/lines"
)

var ErrNotFound = errors.New("transcript not found")

// Transcript is everything a run saw and produced.
type Transcript struct {
	RunID      string                       `json:"runId"`
	DocumentID string                       `json:"documentId"`
	Revision   string                       `json:"revision,omitempty"`
	Model      string                       `json:"model"`
	Lines      []lines.IndexedLine          `json:"lines"`
	Analyses   []annotation.PersonaAnalysis `json:"analyses"`
	CreatedAt  time.Time                    `json:"createdAt"`
}

// ObjectStore is the slice of the S3 API the archiver needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Archiver stores transcripts. A nil *Archiver is valid and does nothing.
type Archiver struct {
	objects ObjectStore
}

func New(objects ObjectStore) *Archiver {
	return &Archiver{objects: objects}
}

// Key is the object name of a run transcript.
func Key(documentID, runID string) string {
	if documentID == "" {
		documentID = "adhoc"
	}
	return fmt.Sprintf("runs/%s/%s.json", documentID, runID)
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.objects != nil
}

func (a *Archiver) Save(ctx context.Context, t Transcript) error {
	if !a.Enabled() {
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := a.objects.Put(ctx, Key(t.DocumentID, t.RunID), payload); err != nil {
		return fmt.Errorf("archive run %s: %w", t.RunID, err)
	}
	return nil
}

func (a *Archiver) Load(ctx context.Context, documentID, runID string) (Transcript, error) {
	if !a.Enabled() {
		return Transcript{}, ErrNotFound
	}
	payload, err := a.objects.Get(ctx, Key(documentID, runID))
	if err != nil {
		return Transcript{}, err
	}
	var t Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	return t, nil
}

// MinioStore implements ObjectStore on minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to endpoint and creates bucket when missing.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Printf("archive: created bucket %s", bucket)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
