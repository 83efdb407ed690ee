package archive_test

import (
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stratotrack/sondelog/archive"
)

// Runs only with live credentials in the environment; the fake store
// covers the rest of the package.
func newLiveClient(t *testing.T) *archive.S3Client {
	if os.Getenv("AccessKey") == "" {
		t.Skip("s3 credentials not configured")
	}
	config := &archive.S3Config{
		Enabled:    true,
		AccessKey:  os.Getenv("AccessKey"),
		SecretKey:  os.Getenv("SecretKey"),
		Endpoint:   os.Getenv("Endpoint"),
		Region:     os.Getenv("Region"),
		DisableSSL: true,
		Bucket:     os.Getenv("Bucket"),
		PrefixPath: "sondelog-dev",
	}
	assert.NotEmpty(t, config.SecretKey)
	assert.NotEmpty(t, config.Endpoint)
	assert.NotEmpty(t, config.Bucket)
	client, err := archive.NewS3Client(config)
	assert.NoError(t, err)
	return client
}

func Test_S3Client_PutFetchStat(t *testing.T) {
	client := newLiveClient(t)

	fileRaw, err := os.CreateTemp("", "sondelog-s3-test")
	assert.NoError(t, err)
	defer os.Remove(fileRaw.Name())
	payload := []byte("sondelog archive round trip")
	_, err = fileRaw.Write(payload)
	assert.NoError(t, err)
	assert.NoError(t, fileRaw.Close())

	fileRemote := path.Join("test", fmt.Sprintf("%d.bin", time.Now().UnixNano()))
	assert.NoError(t, client.Put(fileRaw.Name(), fileRemote))

	info, err := client.Stat(fileRemote)
	assert.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size)

	fileFetch, err := os.CreateTemp("", "sondelog-s3-test")
	assert.NoError(t, err)
	fetchPath := fileFetch.Name()
	assert.NoError(t, fileFetch.Close())
	assert.NoError(t, os.Remove(fetchPath))
	defer os.Remove(fetchPath)

	assert.NoError(t, client.Fetch(fetchPath, fileRemote))
	fetched, err := os.ReadFile(fetchPath)
	assert.NoError(t, err)
	assert.Equal(t, payload, fetched)
}
