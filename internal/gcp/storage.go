package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveBytesAtomically writes content to a GCS object only if it doesn't
// already exist, and returns the object's public URL. Re-uploading the same
// object name is treated as success so retries stay idempotent.
func SaveBytesAtomically(ctx context.Context, bucket *storage.BucketHandle, bucketName, objectName string, content []byte, contentType string) (string, error) {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	publicURL := fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucketName, objectName)

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, keeping existing copy.", "gcsObject", objectName)
			return publicURL, nil
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, keeping existing copy.", "gcsObject", objectName)
			return publicURL, nil
		}
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return publicURL, nil
}
