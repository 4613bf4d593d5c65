package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/seera-lab/api/internal/di"
	"github.com/seera-lab/api/internal/handlers"
	"github.com/seera-lab/api/internal/payments"
	"github.com/seera-lab/api/internal/platform/auth"
	"github.com/seera-lab/api/internal/platform/config"
	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
	"github.com/seera-lab/api/internal/platform/idempotency"
	"github.com/seera-lab/api/internal/platform/jobs"
	"github.com/seera-lab/api/internal/platform/observability"
	"github.com/seera-lab/api/internal/platform/secrets"
	"github.com/seera-lab/api/internal/repositories"
	firestoreRepo "github.com/seera-lab/api/internal/repositories/firestore"
	"github.com/seera-lab/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, fetcher, envValues := bootstrapConfig(ctx, logger)
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var (
		pubsubClient *pubsub.Client
		orderTopic   *pubsub.Topic
		publisher    services.OrderEventPublisher
	)
	if projectID := strings.TrimSpace(cfg.Events.ProjectID); projectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		orderTopic = pubsubClient.Topic(cfg.Events.OrderTopic)
		publisher, err = jobs.NewPubSubOrderEventPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("events: no pubsub project configured; order events disabled")
	}

	paymentsLogger := logger.Named("payments")
	tapProvider, err := payments.NewTapProvider(payments.TapProviderConfig{
		SecretKey:   cfg.Payments.TapSecretKey,
		BaseURL:     cfg.Payments.TapBaseURL,
		WebhookURL:  cfg.Payments.WebhookURL,
		RedirectURL: cfg.Payments.RedirectURL,
		Logger:      payments.TapLogger(zapEventLogger(paymentsLogger)),
	})
	if err != nil {
		logger.Fatal("failed to initialise tap payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"tap": tapProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, fetcher, orderTopic)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Gateway:      paymentManager,
		Events:       publisher,
		BankTransfer: services.BankTransferConfig(cfg.BankTransfer),
		Build:        buildInfo,
		Clock:        time.Now,
		Logger:       zapEventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	stopCleanup := startIdempotencyCleanup(idempotencyStore, cfg.Idempotency, logger.Named("idempotency"))

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	svc := container.Services

	publicHandlers := handlers.NewPublicHandlers(svc.Catalog, svc.Pricing, svc.Discounts)
	orderHandlers := handlers.NewOrderHandlers(svc.Orders, svc.Messages).
		WithLogger(zapEventLogger(logger.Named("orders")))
	paymentHandlers := handlers.NewPaymentHandlers(svc.Payments)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Customers, svc.Team, svc.Discounts, svc.AuditLogs)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments).
		WithLogger(zapEventLogger(logger.Named("webhooks")))
	internalHandlers := handlers.NewInternalHandlers(svc.Payments, svc.Orders)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		idempotencyMiddleware,
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithPublicRoutes(publicHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	if cfg.Features.EnableWalletPayments {
		opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.Routes))
	}
	opts = append(opts, handlers.WithAdminRoutes(adminHandlers.Routes))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes))
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("seera-lab api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopCleanup()

	if orderTopic != nil {
		orderTopic.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// bootstrapConfig reads the environment, wires the Secret Manager fetcher,
// and loads the validated configuration. Any failure here is fatal since the
// process cannot serve without it.
func bootstrapConfig(ctx context.Context, logger *zap.Logger) (config.Config, *secrets.Fetcher, map[string]string) {
	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	return cfg, fetcher, envValues
}

// startIdempotencyCleanup runs the expired-record sweep on the configured
// interval and returns a function that stops it and waits for the sweep to
// finish.
func startIdempotencyCleanup(store *idempotency.FirestoreStore, cfg config.IdempotencyConfig, logger *zap.Logger) func() {
	if cfg.CleanupInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(cfg.CleanupInterval)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				sweepCtx, sweepCancel := context.WithTimeout(ctx, time.Minute)
				removed, err := store.CleanupExpired(sweepCtx, time.Now().UTC(), cfg.CleanupBatchSize)
				sweepCancel()
				if err != nil {
					logger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		cancel()
		<-done
	}
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	orElse := func(value, fallback string) string {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
		return fallback
	}
	return services.BuildInfo{
		Version:     orElse(env["API_BUILD_VERSION"], "dev"),
		CommitSHA:   orElse(env["API_BUILD_COMMIT_SHA"], "unknown"),
		Environment: orElse(cfg.Security.Environment, "local"),
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	var checks []repositories.DependencyCheck
	if client != nil {
		checks = append(checks, firestoreHealthCheck(client))
	}
	if fetcher != nil {
		checks = append(checks, secretManagerHealthCheck(fetcher))
	}
	if topic != nil {
		checks = append(checks, pubsubHealthCheck(topic))
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// firestoreHealthCheck proves connectivity by listing collections; an empty
// database still answers with iterator.Done.
func firestoreHealthCheck(client *firestore.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}
}

// secretManagerHealthCheck resolves a well-known reference. NotFound means
// the API answered, which is all the readiness check needs to know.
func secretManagerHealthCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const healthRef = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, healthRef)
			if err == nil || status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func pubsubHealthCheck(topic *pubsub.Topic) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "pubsub",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s does not exist", topic.ID())
			}
			return nil
		},
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secretValues := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretValues[strings.ToLower(key)] = value
	}
	if cfg.Webhooks.SigningSecret != "" {
		if _, ok := secretValues["default"]; !ok {
			secretValues["default"] = cfg.Webhooks.SigningSecret
		}
	}
	if len(secretValues) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: secretValues}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	resolver := webhookSecretResolver(secretValues)
	return validator.RequireHMACResolver(resolver)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	secret, ok := p.secrets[key]
	if !ok || secret == "" {
		return "", errors.New("auth: secret not found")
	}
	return secret, nil
}

// webhookSecretResolver maps a webhook request path to a signing secret name.
// For /webhooks/payments/tap it tries "payments/tap", then "payments", then
// "default".
func webhookSecretResolver(secrets map[string]string) func(*http.Request) (string, bool) {
	lookup := func(candidate string) (string, bool) {
		if secret, ok := secrets[candidate]; ok && secret != "" {
			return candidate, true
		}
		return "", false
	}

	return func(r *http.Request) (string, bool) {
		_, rest, found := strings.Cut(r.URL.Path, "/webhooks/")
		if !found {
			rest = r.URL.Path
		}
		segments := strings.Split(strings.Trim(rest, "/"), "/")

		if len(segments) >= 2 {
			if name, ok := lookup(strings.ToLower(segments[0] + "/" + segments[1])); ok {
				return name, ok
			}
		}
		if len(segments) >= 1 && segments[0] != "" {
			if name, ok := lookup(strings.ToLower(segments[0])); ok {
				return name, ok
			}
		}
		return lookup("default")
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key, fallback string) string {
		if value := strings.TrimSpace(env[key]); value != "" {
			return value
		}
		return fallback
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(strings.ToLower(lookup("API_SECURITY_ENVIRONMENT", "local"))),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(lookup("API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	if projects := secretProjectMapFromEnv(env); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if project := lookup("API_SECRET_DEFAULT_PROJECT_ID", lookup("API_FIREBASE_PROJECT_ID", "")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentials := lookup("API_FIREBASE_CREDENTIALS_FILE", ""); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := map[string]struct{}{
		"Payments.TapSecretKey": {},
	}
	if strings.TrimSpace(env["API_WEBHOOK_SIGNING_SECRET"]) != "" {
		required["Webhooks.SigningSecret"] = struct{}{}
	}
	for key := range keyValuePairs(env["API_SECURITY_HMAC_SECRETS"]) {
		required[fmt.Sprintf("Security.HMAC.Secrets[%s]", strings.ToLower(key))] = struct{}{}
	}

	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	for envLabel, project := range keyValuePairs(env["API_SECRET_PROJECT_IDS"]) {
		projects[strings.ToLower(envLabel)] = project
	}
	return projects
}

// secretVersionPinsFromEnv normalises pin keys to the canonical secret://
// form used by the fetcher, accepting bare and sm:// references.
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range keyValuePairs(env["API_SECRET_VERSION_PINS"]) {
		if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
			ref = "secret://" + rest
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[ref] = version
	}
	return pins
}

// keyValuePairs parses comma separated "key=value" entries, dropping
// malformed or empty ones.
func keyValuePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
