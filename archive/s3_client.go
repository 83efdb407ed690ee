package archive

import (
	"fmt"
	"path"

	"github.com/minio/minio-go/v6"
	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/log"
)

// S3Client stores flight artifacts in an S3-compatible bucket.
type S3Client struct {
	client *minio.Client
	config *S3Config
}

var _ Store = (*S3Client)(nil)

// NewS3Client builds a client and verifies the bucket exists.
func NewS3Client(config *S3Config) (*S3Client, error) {
	var client *minio.Client
	var err error
	if config.Region != "" {
		client, err = minio.NewWithRegion(config.Endpoint, config.AccessKey, config.SecretKey, !config.DisableSSL, config.Region)
	} else {
		client, err = minio.New(config.Endpoint, config.AccessKey, config.SecretKey, !config.DisableSSL)
	}
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(config.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("s3 bucket(%s) does not exist", config.Bucket)
	}
	return &S3Client{
		client: client,
		config: config,
	}, nil
}

// Put uploads the local file to remotePath, remotePath does not include PrefixPath
func (c *S3Client) Put(localPath string, remotePath string) error {
	objectName := path.Join(c.config.PrefixPath, remotePath)
	log.Info(fmt.Sprintf("S3[minio] Put:%s->%s", localPath, objectName))
	_, err := c.client.FPutObject(c.config.Bucket, objectName, localPath, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

// Fetch downloads remotePath into the local file, remotePath does not include PrefixPath
func (c *S3Client) Fetch(localPath string, remotePath string) error {
	objectName := path.Join(c.config.PrefixPath, remotePath)
	log.Info(fmt.Sprintf("S3[minio] Fetch:%s<-%s", localPath, objectName))
	return c.client.FGetObject(c.config.Bucket, objectName, localPath, minio.GetObjectOptions{})
}

// Stat returns remote object metadata, remotePath does not include PrefixPath
func (c *S3Client) Stat(remotePath string) (minio.ObjectInfo, error) {
	objectName := path.Join(c.config.PrefixPath, remotePath)
	return c.client.StatObject(c.config.Bucket, objectName, minio.StatObjectOptions{})
}
