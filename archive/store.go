package archive

import "github.com/minio/minio-go/v6"

// Store is remote object storage for flight artifacts. remotePath never
// includes the configured prefix; implementations join it themselves.
type Store interface {
	// Put uploads the local file to remotePath.
	Put(localPath string, remotePath string) error
	// Fetch downloads remotePath into the local file.
	Fetch(localPath string, remotePath string) error
	// Stat returns the remote object metadata.
	Stat(remotePath string) (minio.ObjectInfo, error)
}
