//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestFirestoreRepositoriesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "storefront-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	t.Run("counter issues unique values under concurrency", func(t *testing.T) {
		const workers = 16
		results := make([]int64, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				value, err := registry.Counters().Next(ctx, "orders:2024", 1)
				if err != nil {
					t.Errorf("next(%d): %v", idx, err)
					return
				}
				results[idx] = value
			}(i)
		}
		wg.Wait()
		sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
		for i, val := range results {
			if val != int64(i+1) {
				t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, val)
			}
		}
	})

	t.Run("decrement stock never goes negative", func(t *testing.T) {
		client, err := provider.Client(ctx)
		if err != nil {
			t.Fatalf("client: %v", err)
		}
		if _, err := client.Collection(productsCollection).Doc("prod_mug").Set(ctx, productDocument{Name: "Mug", Price: 1500, Stock: 3}); err != nil {
			t.Fatalf("seed product: %v", err)
		}

		var succeeded atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := registry.Products().DecrementStock(ctx, []repositories.StockAdjustment{{ProductID: "prod_mug", Quantity: 1}})
				if err == nil {
					succeeded.Add(1)
					return
				}
				invErr, ok := repositories.AsInventoryError(err)
				if !ok || invErr.Code != repositories.InventoryErrorInsufficientStock {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if got := succeeded.Load(); got != 3 {
			t.Fatalf("expected exactly 3 successful decrements, got %d", got)
		}
		products, err := registry.Products().FindByIDs(ctx, []string{"prod_mug"})
		if err != nil {
			t.Fatalf("find products: %v", err)
		}
		if products["prod_mug"].Stock != 0 {
			t.Fatalf("expected stock 0, got %d", products["prod_mug"].Stock)
		}

		err = registry.Products().DecrementStock(ctx, []repositories.StockAdjustment{{ProductID: "missing", Quantity: 1}})
		invErr, ok := repositories.AsInventoryError(err)
		if !ok || invErr.Code != repositories.InventoryErrorProductNotFound {
			t.Fatalf("expected product not found, got %v", err)
		}
	})

	t.Run("mark paid applies once", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		order := domain.Order{
			ID:            "ord_integration",
			OrderNumber:   "ORD-2024-000001",
			UserID:        "user_1",
			Items:         []domain.OrderItem{{ProductID: "prod_mug", Name: "Mug", Price: 1500, Quantity: 1}},
			PaymentMethod: domain.PaymentMethodStripe,
			Pricing:       domain.OrderPricing{ItemsPrice: 1500, TaxPrice: 120, ShippingPrice: 1000, TotalPrice: 2620},
			Status:        domain.OrderStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := registry.Orders().Insert(ctx, order); err != nil {
			t.Fatalf("insert: %v", err)
		}
		err := registry.Orders().Insert(ctx, order)
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict on duplicate insert, got %v", err)
		}

		var applied atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, ok, err := registry.Orders().MarkPaid(ctx, order.ID, repositories.MarkPaidParams{
					PaidAt:  now,
					Status:  domain.OrderStatusConfirmed,
					Receipt: domain.PaymentResult{ID: fmt.Sprintf("pi_%d", idx), Status: "succeeded"},
				})
				if err != nil {
					t.Errorf("mark paid: %v", err)
					return
				}
				if ok {
					applied.Add(1)
				}
			}(i)
		}
		wg.Wait()
		if applied.Load() != 1 {
			t.Fatalf("expected one applied transition, got %d", applied.Load())
		}

		stored, err := registry.Orders().FindByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !stored.IsPaid || stored.Status != domain.OrderStatusConfirmed || stored.PaymentResult == nil {
			t.Fatalf("unexpected stored order %+v", stored)
		}

		delivered, err := registry.Orders().UpdateStatus(ctx, order.ID, repositories.OrderStatusUpdate{Status: domain.OrderStatusDelivered, UpdatedAt: now})
		if err != nil {
			t.Fatalf("update status: %v", err)
		}
		if !delivered.IsDelivered || delivered.DeliveredAt == nil {
			t.Fatalf("expected delivered flags, got %+v", delivered)
		}

		_, _, err = registry.Orders().MarkPaid(ctx, "missing", repositories.MarkPaidParams{PaidAt: now})
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
