// Package secrets resolves secret:// references against Google Secret
// Manager, with an in-process cache and a local file for development
// environments that have no Cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	localEnvironment = "local"
	localSecretsFile = ".secrets.local"
	meterName        = "github.com/seera-lab/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// versionClient is the slice of the Secret Manager API the fetcher needs.
type versionClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references. Values are cached for the
// process lifetime; Invalidate drops them after a rotation.
type Fetcher struct {
	client      versionClient
	closeClient bool

	logger *zap.Logger

	env      string
	project  string
	projects map[string]string
	pins     map[string]string

	localPath string
	localOnce sync.Once
	localVals map[string]string
	localErr  error

	mu    sync.RWMutex
	cache map[string]string

	fetchLatency metric.Float64Histogram
	latencyOK    bool
	cacheHits    metric.Int64Counter
	hitsOK       bool
}

type fetcherConfig struct {
	logger     *zap.Logger
	env        string
	project    string
	projects   map[string]string
	pins       map[string]string
	localPath  string
	client     versionClient
	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment selects the deployment environment used when mapping
// secrets to Cloud projects.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the project consulted when no per-environment
// mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.project = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies per-environment Cloud project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projects = cloneStrings(m)
	}
}

// WithFallbackFile overrides the path of the local secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.localPath = strings.TrimSpace(path)
	}
}

// WithVersionPins pins secret versions, keyed by canonical reference.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.pins = cloneStrings(pins)
	}
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client versionClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not
// fatal: the fetcher then serves only from the local secrets file, which
// is how local development runs.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:    zap.NewNop(),
		env:       strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		localPath: localSecretsFile,
		projects:  map[string]string{},
		pins:      map[string]string{},
	}
	if cfg.env == "" {
		cfg.env = localEnvironment
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	latency, latencyErr := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if latencyErr != nil {
		cfg.logger.Warn("secrets: latency metric unavailable", zap.Error(latencyErr))
	}
	hits, hitsErr := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if hitsErr != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(hitsErr))
	}

	f := &Fetcher{
		logger:       cfg.logger,
		env:          cfg.env,
		project:      cfg.project,
		projects:     cloneStrings(cfg.projects),
		pins:         cloneStrings(cfg.pins),
		localPath:    cfg.localPath,
		cache:        make(map[string]string),
		fetchLatency: latency,
		latencyOK:    latencyErr == nil,
		cacheHits:    hits,
		hitsOK:       hitsErr == nil,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}

	client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager unavailable, serving local secrets only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.closeClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.closeClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	started := time.Now()

	ref, err := parseSecretRef(raw)
	if err != nil {
		return "", err
	}
	version := f.resolveVersion(ref)
	key := ref.Canonical + "#" + version

	if value, ok := f.cached(key); ok {
		f.recordHit(ctx, ref.Canonical)
		f.recordFetch(ctx, started, "cache", nil)
		return value, nil
	}

	projectID := f.projectFor(ref)
	if projectID != "" && f.client != nil {
		value, err := f.accessRemote(ctx, projectID, ref.Name, version)
		if err == nil {
			f.store(key, value)
			f.recordFetch(ctx, started, "remote", nil)
			return value, nil
		}
		if !localEligible(err) {
			f.recordFetch(ctx, started, "error", err)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.Canonical, err)
		}
		f.logger.Debug("secrets: using local value", zap.String("ref", ref.Canonical), zap.Error(err))
	}

	value, ok := f.localValue(ref.Canonical, version)
	if !ok {
		err := fmt.Errorf("secrets: no local value for %s", ref.Canonical)
		f.recordFetch(ctx, started, "error", err)
		return "", err
	}
	f.store(key, value)
	f.recordFetch(ctx, started, "local", nil)
	return value, nil
}

// Invalidate drops every cached version of a reference so the next
// Resolve re-reads the rotated value.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseSecretRef(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, ref.Canonical+"#") {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) accessRemote(ctx context.Context, projectID, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) projectFor(ref secretRef) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) resolveVersion(ref secretRef) string {
	if ref.Version != "" {
		return ref.Version
	}
	if pin := strings.TrimSpace(f.pins[ref.Canonical]); pin != "" {
		return pin
	}
	return "latest"
}

func (f *Fetcher) localValue(canonical, version string) (string, bool) {
	f.localOnce.Do(f.loadLocalFile)
	if f.localErr != nil {
		f.logger.Debug("secrets: local file unreadable", zap.Error(f.localErr))
		return "", false
	}
	if value, ok := f.localVals[canonical+"#"+version]; ok {
		return value, true
	}
	value, ok := f.localVals[canonical]
	return value, ok
}

// loadLocalFile reads key=value lines. Keys may be plain names or full
// secret:// references, optionally with an explicit version.
func (f *Fetcher) loadLocalFile() {
	f.localVals = map[string]string{}

	path := strings.TrimSpace(f.localPath)
	if path == "" {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.localErr = fmt.Errorf("secrets: unable to open %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}
		if ref, err := parseSecretRef(name); err == nil {
			version := ref.Version
			if version == "" {
				version = "latest"
			}
			f.localVals[ref.Canonical] = value
			f.localVals[ref.Canonical+"#"+version] = value
			continue
		}
		f.localVals[name] = value
	}
	if err := scanner.Err(); err != nil {
		f.localErr = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

func (f *Fetcher) recordFetch(ctx context.Context, started time.Time, source string, err error) {
	if !f.latencyOK {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.fetchLatency.Record(ctx, float64(time.Since(started))/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) recordHit(ctx context.Context, canonical string) {
	if !f.hitsOK {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskRef(canonical))))
}

type secretRef struct {
	Canonical string
	Name      string
	Version   string
	Project   string
}

func parseSecretRef(raw string) (secretRef, error) {
	if strings.TrimSpace(raw) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return secretRef{
		Canonical: canonical.String(),
		Name:      name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// localEligible reports whether a remote failure should fall through to
// the local file. NotFound stays an error so a typo in a secret name is
// not papered over by a stale local value.
func localEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// maskRef keeps secret names out of metric labels.
func maskRef(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

func cloneStrings(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
