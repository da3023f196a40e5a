package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/currency"
)

// NotificationDispatcherDeps bundles the collaborators used to announce paid orders.
type NotificationDispatcherDeps struct {
	Events   OrderEventPublisher
	Archive  InvoiceArchive
	Currency currency.Unit
	Clock    func() time.Time
}

type notificationDispatcher struct {
	events   OrderEventPublisher
	archive  InvoiceArchive
	currency currency.Unit
	clock    func() time.Time
}

var _ OrderNotifier = (*notificationDispatcher)(nil)

// NewNotificationDispatcher archives the invoice of a paid order and enqueues a confirmation job
// for the mailer.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (OrderNotifier, error) {
	if deps.Events == nil && deps.Archive == nil {
		return nil, errors.New("notification dispatcher: publisher or archive is required")
	}
	unit := deps.Currency
	if unit == (currency.Unit{}) {
		unit = currency.USD
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &notificationDispatcher{
		events:   deps.Events,
		archive:  deps.Archive,
		currency: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// NotifyOrderPaid stores the invoice document, then publishes an order.confirmation job that
// references it. A failed archive still publishes the job without the path.
func (d *notificationDispatcher) NotifyOrderPaid(ctx context.Context, order Order) error {
	var errs []error
	attrs := map[string]string{}
	if order.Customer.Email != "" {
		attrs["customerEmail"] = order.Customer.Email
	}

	if d.archive != nil {
		path, err := d.archive.ArchiveInvoice(ctx, BuildInvoice(order, d.currency))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive invoice: %w", err))
		} else {
			attrs["invoicePath"] = path
		}
	}

	if d.events != nil {
		event := newOrderEvent("order.confirmation", order, d.clock(), attrs)
		if err := d.events.PublishOrderEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publish confirmation: %w", err))
		}
	}
	return errors.Join(errs...)
}
