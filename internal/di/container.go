package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const orderStoreCheck = "orderStore"

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
	Webhooks services.WebhookService
	System   services.SystemService
	Notifier services.OrderNotifier
}

// Integrations carries the external clients handed to services. A nil Payments provider leaves
// the payment and webhook services unset; a nil Events publisher and Archive disable notifications.
type Integrations struct {
	Payments payments.Provider
	Events   services.OrderEventPublisher
	Archive  services.InvoiceArchive
	Meter    metric.Meter
	Logger   *zap.Logger
	Checks   []repositories.DependencyCheck
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes real clients, while
// tests can supply the in-memory registry and stub integrations.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, integ Integrations) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, integ)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, integ Integrations) (Services, error) {
	var svc Services

	clock := integ.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := integ.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	unit, err := parseCurrency(cfg.PSP.Currency)
	if err != nil {
		return Services{}, err
	}

	if integ.Events != nil || integ.Archive != nil {
		notifier, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Events:   integ.Events,
			Archive:  integ.Archive,
			Currency: unit,
			Clock:    clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifier = notifier
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Products:     reg.Products(),
		Counters:     reg.Counters(),
		Payments:     integ.Payments,
		Notifier:     svc.Notifier,
		Events:       integ.Events,
		NumberPrefix: cfg.Orders.NumberPrefix,
		Currency:     unit,
		Clock:        clock,
		Logger:       observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if integ.Payments != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:              reg.Orders(),
			Provider:            integ.Payments,
			Currency:            cfg.PSP.Currency,
			StoreName:           cfg.PSP.StoreName,
			StatementDescriptor: cfg.PSP.StatementDescriptor,
			Logger:              observability.EventLogger(logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc

		webhookSvc, err := services.NewWebhookService(services.WebhookServiceDeps{
			Provider: integ.Payments,
			Orders:   reg.Orders(),
			Notifier: svc.Notifier,
			Events:   integ.Events,
			Meter:    integ.Meter,
			Clock:    clock,
			Logger:   observability.EventLogger(logger.Named("webhooks")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build webhook service: %w", err)
		}
		svc.Webhooks = webhookSvc
	}

	checks := make([]repositories.DependencyCheck, 0, len(integ.Checks)+1)
	checks = append(checks, repositories.StoreCheck(orderStoreCheck, reg, 1500*time.Millisecond))
	checks = append(checks, integ.Checks...)
	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	build := integ.Build
	if strings.TrimSpace(build.Environment) == "" {
		build.Environment = cfg.Security.Environment
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		CriticalChecks:   []string{orderStoreCheck},
		PaymentsEnabled:  integ.Payments != nil,
		Clock:            clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

func parseCurrency(code string) (currency.Unit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return currency.USD, nil
	}
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("parse currency %q: %w", code, err)
	}
	return unit, nil
}
