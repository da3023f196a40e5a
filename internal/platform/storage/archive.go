package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/hanko-field/storefront/internal/services"
)

// openWriterFunc opens a writer for bucket/object carrying attrs.
type openWriterFunc func(ctx context.Context, bucket, object string, attrs gcs.ObjectAttrs) io.WriteCloser

// InvoiceArchive writes invoice documents to a Cloud Storage bucket.
type InvoiceArchive struct {
	bucket  string
	open    openWriterFunc
	marshal func(any) ([]byte, error)
}

var _ services.InvoiceArchive = (*InvoiceArchive)(nil)

// NewInvoiceArchive constructs an archive that stores invoices in bucket.
func NewInvoiceArchive(client *gcs.Client, bucket string) (*InvoiceArchive, error) {
	if client == nil {
		return nil, errors.New("storage invoice archive: client is required")
	}
	return newInvoiceArchive(bucket, func(ctx context.Context, bucket, object string, attrs gcs.ObjectAttrs) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = attrs.ContentType
		w.CacheControl = attrs.CacheControl
		w.Metadata = attrs.Metadata
		return w
	})
}

func newInvoiceArchive(bucket string, open openWriterFunc) (*InvoiceArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &InvoiceArchive{
		bucket: bucket,
		open:   open,
		marshal: func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		},
	}, nil
}

var errInvalidBucket = errors.New("storage: bucket name is required")

// ArchiveInvoice uploads the invoice as JSON and returns its object path. Re-archiving the same
// invoice overwrites the previous object.
func (a *InvoiceArchive) ArchiveInvoice(ctx context.Context, invoice services.InvoiceDocument) (string, error) {
	if a == nil || a.open == nil {
		return "", errors.New("storage invoice archive: not initialised")
	}
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		Year:          invoice.IssuedAt.Year(),
		OrderNumber:   invoice.OrderNumber,
		InvoiceNumber: invoice.InvoiceNumber,
	})
	if err != nil {
		return "", err
	}

	data, err := a.marshal(invoice)
	if err != nil {
		return "", fmt.Errorf("marshal invoice: %w", err)
	}

	w := a.open(ctx, a.bucket, path, gcs.ObjectAttrs{
		ContentType:  "application/json",
		CacheControl: "private, max-age=0",
		Metadata: map[string]string{
			"orderId":       invoice.OrderID,
			"invoiceNumber": invoice.InvoiceNumber,
		},
	})
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write invoice %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload invoice %s: %w", path, err)
	}
	return path, nil
}
