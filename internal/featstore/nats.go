package featstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS implements core.ObjectStore over a JetStream object store bucket.
// It serves training setups where loader workers run on different hosts
// than the machine that precomputed the feature cache.
type NATS struct {
	bucket string
	store  nats.ObjectStore
}

// NewNATS creates the feature bucket, or binds to it when it already exists.
func NewNATS(jetstreamContext nats.JetStreamContext, bucketName string) (*NATS, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Feature artifacts for the %s corpus cache.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create feature bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to feature bucket '%s': %w", bucketName, err)
		}
	}

	return &NATS{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves a feature artifact from the bucket.
func (n *NATS) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read artifact '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close artifact '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves a feature artifact to the bucket.
func (n *NATS) Upload(_ context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf("failed to put artifact '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
