package blob

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCS writes objects to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects with the given service-account file, or application default
// credentials when credentialsFile is empty.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blob gcs: bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Store(ctx context.Context, data []byte, contentType, name string) (string, error) {
	obj := ObjectName(name, contentType)
	w := g.client.Bucket(g.bucket).Object(obj).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("blob gcs write %s: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blob gcs close %s: %w", obj, err)
	}
	return PublicURL(g.bucket, obj), nil
}

// Close releases the storage client.
func (g *GCS) Close() error { return g.client.Close() }

// PublicURL is the address an object is served from when the bucket is public.
func PublicURL(bucket, obj string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, bucket, obj)
}
