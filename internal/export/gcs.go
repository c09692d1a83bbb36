package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSWriter uploads the snapshot to a Cloud Storage object using
// Application Default Credentials.
type GCSWriter struct {
	Bucket string
	Object string
}

func (w *GCSWriter) Write(ctx context.Context, s Snapshot) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	ow := client.Bucket(w.Bucket).Object(w.Object).NewWriter(ctx)
	ow.ContentType = "application/json"
	if err := Encode(ow, s); err != nil {
		ow.Close()
		return fmt.Errorf("write snapshot to gs://%s/%s: %w", w.Bucket, w.Object, err)
	}
	// Close finalizes the upload.
	if err := ow.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
