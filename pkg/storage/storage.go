package storage

// CloudStorage is an abstraction over cloud file storage.
// It is used for meeting recording artifacts.
type CloudStorage interface {
	Save(name string, localPath string) error
	Load(name string) (data []byte, err error)
}

// GetCloudStorage returns a cloud storage client for the provider.
// Unknown providers and client init failures collapse into a no-op
// client, uploads are always best effort.
func GetCloudStorage(provider string, key string) (CloudStorage, error) {
	var st CloudStorage
	var err error
	switch provider {
	case "oracle":
		st, err = NewOracleDataStorageClient(key)
	case "google":
		st, err = NewGoogleCloudClient(key)
	default:
		st = NewNoopCloudStorage()
	}
	if err != nil {
		st = NewNoopCloudStorage()
	}
	return st, err
}
