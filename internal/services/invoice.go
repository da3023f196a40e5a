package services

import (
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// InvoiceDocument is the data a PDF or email renderer needs for an order invoice.
type InvoiceDocument struct {
	InvoiceNumber   string                 `json:"invoiceNumber"`
	OrderID         string                 `json:"orderId"`
	OrderNumber     string                 `json:"orderNumber"`
	IssuedAt        time.Time              `json:"issuedAt"`
	OrderedAt       time.Time              `json:"orderedAt"`
	PaidAt          *time.Time             `json:"paidAt,omitempty"`
	IsPaid          bool                   `json:"isPaid"`
	Status          string                 `json:"status"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Currency        string                 `json:"currency"`
	Customer        InvoiceCustomer        `json:"customer"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	Lines           []InvoiceLine          `json:"lines"`
	Totals          InvoiceTotals          `json:"totals"`
}

// InvoiceCustomer names the billed customer.
type InvoiceCustomer struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// InvoiceLine is one product row. Amounts are minor units with a formatted rendering alongside.
type InvoiceLine struct {
	Name               string `json:"name"`
	Quantity           int    `json:"quantity"`
	UnitPrice          int64  `json:"unitPrice"`
	LineTotal          int64  `json:"lineTotal"`
	UnitPriceFormatted string `json:"unitPriceFormatted"`
	LineTotalFormatted string `json:"lineTotalFormatted"`
}

// InvoiceTotals mirrors the order pricing.
type InvoiceTotals struct {
	Items             int64  `json:"items"`
	Tax               int64  `json:"tax"`
	Shipping          int64  `json:"shipping"`
	Total             int64  `json:"total"`
	ItemsFormatted    string `json:"itemsFormatted"`
	TaxFormatted      string `json:"taxFormatted"`
	ShippingFormatted string `json:"shippingFormatted"`
	TotalFormatted    string `json:"totalFormatted"`
}

// BuildInvoice renders the invoice data for order in unit.
func BuildInvoice(order Order, unit currency.Unit) InvoiceDocument {
	printer := message.NewPrinter(language.AmericanEnglish)
	format := func(cents int64) string {
		return printer.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
	}

	issued := order.CreatedAt
	if order.PaidAt != nil {
		issued = *order.PaidAt
	}

	lines := make([]InvoiceLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, InvoiceLine{
			Name:               item.Name,
			Quantity:           item.Quantity,
			UnitPrice:          item.Price,
			LineTotal:          item.LineTotal(),
			UnitPriceFormatted: format(item.Price),
			LineTotalFormatted: format(item.LineTotal()),
		})
	}

	p := order.Pricing
	return InvoiceDocument{
		InvoiceNumber: "INV-" + order.OrderNumber,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		IssuedAt:      issued,
		OrderedAt:     order.CreatedAt,
		PaidAt:        order.PaidAt,
		IsPaid:        order.IsPaid,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      unit.String(),
		Customer: InvoiceCustomer{
			UserID: order.UserID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
		},
		ShippingAddress: order.ShippingAddress,
		Lines:           lines,
		Totals: InvoiceTotals{
			Items:             p.ItemsPrice,
			Tax:               p.TaxPrice,
			Shipping:          p.ShippingPrice,
			Total:             p.TotalPrice,
			ItemsFormatted:    format(p.ItemsPrice),
			TaxFormatted:      format(p.TaxPrice),
			ShippingFormatted: format(p.ShippingPrice),
			TotalFormatted:    format(p.TotalPrice),
		},
	}
}
