package storage

import "testing"

func TestBuildInvoicePathUsesInvoiceNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		Year:          2026,
		OrderNumber:   "ORD-2026-000042",
		InvoiceNumber: "INV-ORD-2026-000042",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "invoices/2026/ORD-2026-000042/INV-ORD-2026-000042.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildInvoicePDFPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoicePDF, PathParams{
		Year:          2026,
		OrderNumber:   "ORD-2026-000042",
		InvoiceNumber: "INV-ORD-2026-000042",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "invoices/2026/ORD-2026-000042/INV-ORD-2026-000042.pdf" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidInput(t *testing.T) {
	cases := map[string]PathParams{
		"traversal":    {Year: 2026, OrderNumber: "../bad", InvoiceNumber: "INV-1"},
		"missing file": {Year: 2026, OrderNumber: "ORD-1"},
		"bad year":     {Year: 26, OrderNumber: "ORD-1", InvoiceNumber: "INV-1"},
	}
	for name, params := range cases {
		if _, err := BuildObjectPath(PurposeInvoice, params); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := BuildObjectPath("unknown", PathParams{}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
