package storage

import "errors"

// NoopCloudStorage swallows uploads when no provider is configured.
type NoopCloudStorage struct{}

var noopErr = errors.New("an empty storage stub")

func NewNoopCloudStorage() *NoopCloudStorage { return &NoopCloudStorage{} }

func (n *NoopCloudStorage) Save(name string, localPath string) (err error) {
	return nil
}

func (n *NoopCloudStorage) Load(name string) (data []byte, err error) {
	return nil, noopErr
}
