// Package storage wraps the S3-compatible object store that holds attachment
// blobs. Rows in the database stay authoritative; blob operations here are
// best effort.
package storage

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	mc        *minio.Client
	bucket    string
	publicURL string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Client{
		mc:        mc,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// AttachmentKey is the object key an attachment blob lives under.
func AttachmentKey(orgPublicID, attachmentPublicID, fileName string) string {
	return orgPublicID + "/" + attachmentPublicID + "/" + fileName
}

// AttachmentURL is the stable public URL for an attachment, independent of
// which store instance serves it.
func (c *Client) AttachmentURL(orgShortcode, attachmentPublicID, fileName string) string {
	return fmt.Sprintf("%s/attachment/%s/%s/%s",
		c.publicURL, orgShortcode, attachmentPublicID, url.PathEscape(fileName))
}

// DeleteAttachments removes attachment blobs by key. Failures are logged and
// do not propagate; the database rows are already gone and a leaked blob is
// recoverable by a cleanup sweep.
func (c *Client) DeleteAttachments(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			log.Printf("storage: delete %s: %v", key, err)
		}
	}
}
