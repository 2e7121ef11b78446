package storage

import (
	"context"
	"errors"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

type GoogleCloudClient struct {
	bucket *storage.BucketHandle
	ctx    context.Context
}

// NewGoogleCloudClient returns a Google Cloud Storage client bound to
// the given bucket. Credentials are resolved from the environment.
func NewGoogleCloudClient(bucket string) (*GoogleCloudClient, error) {
	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleCloudClient{bucket: client.Bucket(bucket), ctx: ctx}, nil
}

// Save uploads a local file under the given object name.
func (c *GoogleCloudClient) Save(name string, localPath string) (err error) {
	// Bypass if client is nil
	if c == nil {
		return nil
	}
	reader, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = reader.Close()
	}()
	wc := c.bucket.Object(name).NewWriter(c.ctx)
	if _, err = io.Copy(wc, reader); err != nil {
		return err
	}
	return wc.Close()
}

// Load downloads an object into memory.
func (c *GoogleCloudClient) Load(name string) (data []byte, err error) {
	if c == nil {
		return nil, errors.New("cloud storage was not initialized")
	}
	rc, err := c.bucket.Object(name).NewReader(c.ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	return io.ReadAll(rc)
}
