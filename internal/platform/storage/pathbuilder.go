package storage

import (
	"fmt"
	"strings"
	"sync"
)

// ObjectPurpose captures high-level intent for storage layout decisions.
type ObjectPurpose string

const (
	// PurposeInvoice stores the rendered invoice document of a paid order.
	PurposeInvoice ObjectPurpose = "invoice"
	// PurposeInvoicePDF stores a typeset invoice produced by the mailer.
	PurposeInvoicePDF ObjectPurpose = "invoice-pdf"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	Year          int
	OrderNumber   string
	InvoiceNumber string
	FileName      string
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ObjectPurpose]PathBuilder{
		PurposeInvoice:    buildInvoicePath("json"),
		PurposeInvoicePDF: buildInvoicePath("pdf"),
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ObjectPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

// buildInvoicePath lays invoices out as invoices/<yyyy>/<orderNumber>/<file>. The file name
// defaults to <invoiceNumber>.<ext>.
func buildInvoicePath(ext string) PathBuilder {
	return func(params PathParams) (string, error) {
		if params.Year < 2000 || params.Year > 9999 {
			return "", fmt.Errorf("storage: year %d is out of range", params.Year)
		}
		orderNumber, err := validateSegment("orderNumber", params.OrderNumber)
		if err != nil {
			return "", err
		}
		name := strings.TrimSpace(params.FileName)
		if name == "" && strings.TrimSpace(params.InvoiceNumber) != "" {
			name = fmt.Sprintf("%s.%s", strings.TrimSpace(params.InvoiceNumber), ext)
		}
		fileName, err := validateFileName(name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("invoices/%04d/%s/%s", params.Year, orderNumber, fileName), nil
	}
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
