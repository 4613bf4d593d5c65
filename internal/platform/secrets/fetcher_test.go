package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteValue(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	resource := "projects/seera-lab/secrets/tap_secret_key/versions/latest"
	manager.values[resource] = "sk_test_tap"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("seera-lab"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
		if err != nil {
			t.Fatalf("Resolve call %d returned error: %v", i+1, err)
		}
		if got != "sk_test_tap" {
			t.Fatalf("Resolve call %d = %q, want sk_test_tap", i+1, got)
		}
	}

	if calls := manager.accesses(resource); calls != 1 {
		t.Fatalf("expected one remote access, got %d", calls)
	}
}

func TestResolveUsesEnvironmentProjectMap(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	manager.values["projects/seera-prod/secrets/tap_secret_key/versions/latest"] = "sk_live_tap"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithEnvironment("production"),
		WithProjectMap(map[string]string{"production": "seera-prod"}),
		WithDefaultProject("seera-lab"),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_live_tap" {
		t.Fatalf("Resolve = %q, want the production project value", got)
	}
}

func TestResolveFallsBackToLocalFileWhenAccessDenied(t *testing.T) {
	ctx := context.Background()

	localPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(localPath, []byte("secret://tap_secret_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("failed writing local secrets file: %v", err)
	}

	manager := newStubSecretManager()
	manager.failures["projects/seera-lab/secrets/tap_secret_key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("seera-lab"),
		WithFallbackFile(localPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("Resolve = %q, want sk_local", got)
	}
}

func TestResolveDoesNotMaskMissingSecretWithLocalValue(t *testing.T) {
	ctx := context.Background()

	localPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(localPath, []byte("secret://tap_secret_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("failed writing local secrets file: %v", err)
	}

	manager := newStubSecretManager()
	manager.failures["projects/seera-lab/secrets/tap_secret_key/versions/latest"] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("seera-lab"),
		WithFallbackFile(localPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://tap_secret_key"); err == nil {
		t.Fatal("expected an error for a secret that does not exist remotely")
	}
}

func TestResolveHonoursVersionPins(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	pinned := "projects/seera-lab/secrets/tap_secret_key/versions/7"
	manager.values[pinned] = "sk_pinned"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("seera-lab"),
		WithVersionPins(map[string]string{"secret://tap_secret_key": "7"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_pinned" {
		t.Fatalf("Resolve = %q, want sk_pinned", got)
	}
	if calls := manager.accesses(pinned); calls != 1 {
		t.Fatalf("expected the pinned version to be accessed once, got %d", calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	resource := "projects/seera-lab/secrets/tap_secret_key/versions/latest"
	manager.values[resource] = "sk_before_rotation"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("seera-lab"),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://tap_secret_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	manager.setValue(resource, "sk_after_rotation")
	fetcher.Invalidate("secret://tap_secret_key")

	got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
	if err != nil {
		t.Fatalf("Resolve after Invalidate returned error: %v", err)
	}
	if got != "sk_after_rotation" {
		t.Fatalf("Resolve after Invalidate = %q, want the rotated value", got)
	}
	if calls := manager.accesses(resource); calls != 2 {
		t.Fatalf("expected two remote accesses around the rotation, got %d", calls)
	}
}

func TestNewFetcherWithoutCredentialsServesLocalFile(t *testing.T) {
	ctx := context.Background()

	originalFactory := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		newSecretManagerClient = originalFactory
	})

	localPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(localPath, []byte("secret://tap_secret_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("failed writing local secrets file: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithFallbackFile(localPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://tap_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("Resolve = %q, want sk_local", got)
	}
}

type stubSecretManager struct {
	mu       sync.Mutex
	values   map[string]string
	failures map[string]error
	counts   map[string]int
}

func newStubSecretManager() *stubSecretManager {
	return &stubSecretManager{
		values:   make(map[string]string),
		failures: make(map[string]error),
		counts:   make(map[string]int),
	}
}

func (s *stubSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := req.GetName()
	s.counts[name]++

	if err, ok := s.failures[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := s.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (s *stubSecretManager) Close() error {
	return nil
}

func (s *stubSecretManager) setValue(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func (s *stubSecretManager) accesses(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}
