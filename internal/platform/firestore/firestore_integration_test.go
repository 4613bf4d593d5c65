//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/seera-lab/api/internal/platform/config"
	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type discountDoc struct {
	Code        string `firestore:"code"`
	Redemptions int    `firestore:"redemptions"`
}

type notFoundClassifier interface{ IsNotFound() bool }

func TestProviderAndRepositoryIntegration(t *testing.T) {
	endpoint := startEmulator(t)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "seera-test",
		EmulatorHost: endpoint,
	}
	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}
	if client == nil {
		t.Fatalf("provider returned nil client")
	}

	repo := pfirestore.NewBaseRepository[discountDoc](provider, "discounts")

	if _, err := repo.Set(ctx, "launch10", discountDoc{Code: "LAUNCH10", Redemptions: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	doc, err := repo.Get(ctx, "launch10")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "launch10" || doc.Data.Code != "LAUNCH10" || doc.Data.Redemptions != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected update time to be set")
	}

	if _, err := repo.Update(ctx, "launch10", []firestore.Update{{Path: "redemptions", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "launch10"); err != nil || doc.Data.Redemptions != 2 {
		t.Fatalf("expected redemptions=2 after update, got %#v err=%v", doc.Data, err)
	}

	if err := repo.Replace(ctx, "launch10", discountDoc{Code: "LAUNCH10", Redemptions: 5}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "launch10"); err != nil || doc.Data.Redemptions != 5 {
		t.Fatalf("expected redemptions=5 after replace, got %#v err=%v", doc.Data, err)
	}

	// Replace must refuse to resurrect a document that no longer exists.
	err = repo.Replace(ctx, "vanished", discountDoc{Code: "GHOST"})
	var cls notFoundClassifier
	if err == nil || !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found from replace of missing document, got %v", err)
	}
	if _, err := repo.Get(ctx, "vanished"); err == nil {
		t.Fatalf("failed replace must not create the document")
	}

	docs, err := repo.Query(ctx, nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	cls = nil
	if _, err := repo.Get(ctx, "missing"); err == nil || !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "launch10")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var entity discountDoc
		if err := snap.DataTo(&entity); err != nil {
			return err
		}
		entity.Redemptions++
		return tx.Set(ref, entity)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "launch10"); err != nil || doc.Data.Redemptions != 6 {
		t.Fatalf("expected redemptions=6 after txn, got %#v err=%v", doc.Data, err)
	}

	cancelled, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

// startEmulator launches the Firestore emulator in docker and returns its
// endpoint, skipping the test when docker is unavailable.
func startEmulator(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	out, err := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	containerID := strings.TrimSpace(string(out))
	if containerID == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(stopCtx, "docker", "stop", containerID).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	waitForEndpoint(t, endpoint, 30*time.Second)
	return endpoint
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}
