package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSArchiver stores each imported NF-e XML once under nfe/<tenant>/<key>.xml.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiverFromEnv returns (nil, nil) when NFE_ARCHIVE_BUCKET is unset.
func NewGCSArchiverFromEnv(ctx context.Context) (*GCSArchiver, error) {
	bucket := strings.TrimSpace(os.Getenv("NFE_ARCHIVE_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %w", bucket, err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

func ArchiveObjectName(tenantId, invoiceKey string) string {
	return path.Join("nfe", tenantId, invoiceKey+".xml")
}

func (a *GCSArchiver) Archive(ctx context.Context, tenantId, invoiceKey string, raw []byte) error {
	if a == nil || a.client == nil {
		return nil
	}
	obj := a.client.Bucket(a.bucket).Object(ArchiveObjectName(tenantId, invoiceKey))
	// an invoice key is imported once per tenant; never overwrite the stored original
	wc := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	wc.ContentType = "application/xml"
	wc.Metadata = map[string]string{
		"tenant_id":   tenantId,
		"invoice_key": invoiceKey,
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

func (a *GCSArchiver) Close() error {
	if a == nil || a.client == nil {
		return errors.New("gcs archiver not initialized")
	}
	return a.client.Close()
}
