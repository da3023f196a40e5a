package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/platform/config"
)

// idTokenClient is the subset of the Admin SDK auth client used for verification.
type idTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks shopper and staff ID tokens issued by Firebase Authentication.
type FirebaseVerifier struct {
	client        idTokenClient
	timeout       time.Duration
	checkRevoked  bool
	clientOptions []option.ClientOption
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout bounds each verification call.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithRevocationCheck makes every verification consult the revocation list. It costs one Admin
// API round trip per request.
func WithRevocationCheck(enabled bool) FirebaseOption {
	return func(v *FirebaseVerifier) {
		v.checkRevoked = enabled
	}
}

// WithFirebaseClientOptions appends Admin SDK client options.
func WithFirebaseClientOptions(opts ...option.ClientOption) FirebaseOption {
	return func(v *FirebaseVerifier) {
		v.clientOptions = append(v.clientOptions, opts...)
	}
}

// NewFirebaseVerifier initialises the Admin SDK for cfg.ProjectID.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	verifier := &FirebaseVerifier{timeout: defaultVerifyTimeout}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		verifier.clientOptions = append(verifier.clientOptions, option.WithCredentialsFile(path))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, verifier.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	verifier.client = authClient
	return verifier, nil
}

// VerifyIDToken validates idToken within the configured timeout.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	if v.checkRevoked {
		return v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	}
	return v.client.VerifyIDToken(ctx, idToken)
}
