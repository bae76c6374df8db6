package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client.
// Uses GCS_CREDENTIALS_JSON when set, Application Default Credentials otherwise.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// ReportBucket returns the bucket report artifacts are copied to; empty disables uploads.
func ReportBucket() string {
	return strings.TrimSpace(os.Getenv("REPORT_GCS_BUCKET"))
}

// UploadFilesToGCS copies local files to gs://<bucket>/<prefix>/<basename> and
// returns the object URIs in input order.
func UploadFilesToGCS(ctx context.Context, bucketName, prefix string, files ...string) ([]string, error) {
	if bucketName == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	bucket := client.Bucket(bucketName)
	uris := make([]string, 0, len(files))
	for _, f := range files {
		objectName := path.Join(prefix, filepath.Base(f))
		if err := uploadOne(ctx, bucket.Object(objectName), f); err != nil {
			return uris, fmt.Errorf("upload %s: %w", f, err)
		}
		uris = append(uris, fmt.Sprintf("gs://%s/%s", bucketName, objectName))
	}
	return uris, nil
}

func uploadOne(ctx context.Context, obj *storage.ObjectHandle, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	wc := obj.NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		wc.ContentType = ct
	}
	if _, err := io.Copy(wc, src); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}
