package capability_test

import (
	"errors"
	"os"
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/capability"
)

func TestSealAndResolve(t *testing.T) {
	dataDir := t.TempDir()
	root := t.TempDir()

	keeper, err := capability.LoadKeeper(dataDir)
	if err != nil {
		t.Fatalf("LoadKeeper failed: %v", err)
	}

	token, err := keeper.Seal(root)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	resolved, err := keeper.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved != root {
		t.Errorf("Resolve = %q, want %q", resolved, root)
	}

	if !keeper.Writeable(token) {
		t.Error("expected temp dir to be writeable")
	}
}

func TestKeeperIsPersistent(t *testing.T) {
	dataDir := t.TempDir()
	root := t.TempDir()

	first, err := capability.LoadKeeper(dataDir)
	if err != nil {
		t.Fatalf("LoadKeeper failed: %v", err)
	}
	token, err := first.Seal(root)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// A keeper reloaded from the same data dir must resolve old tokens.
	second, err := capability.LoadKeeper(dataDir)
	if err != nil {
		t.Fatalf("second LoadKeeper failed: %v", err)
	}
	if _, err := second.Resolve(token); err != nil {
		t.Errorf("reloaded keeper could not resolve token: %v", err)
	}
}

func TestRevocation(t *testing.T) {
	root := t.TempDir()

	keeper, err := capability.LoadKeeper(t.TempDir())
	if err != nil {
		t.Fatalf("LoadKeeper failed: %v", err)
	}
	token, err := keeper.Seal(root)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	t.Run("different key", func(t *testing.T) {
		other, err := capability.LoadKeeper(t.TempDir())
		if err != nil {
			t.Fatalf("LoadKeeper failed: %v", err)
		}
		if _, err := other.Resolve(token); !errors.Is(err, capability.ErrRevoked) {
			t.Errorf("Resolve with rotated key = %v, want ErrRevoked", err)
		}
	})

	t.Run("directory removed", func(t *testing.T) {
		os.RemoveAll(root)
		if _, err := keeper.Resolve(token); !errors.Is(err, capability.ErrRevoked) {
			t.Errorf("Resolve on removed dir = %v, want ErrRevoked", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := keeper.Resolve([]byte("short")); !errors.Is(err, capability.ErrRevoked) {
			t.Errorf("Resolve on garbage = %v, want ErrRevoked", err)
		}
	})
}

func TestSealRejectsMissingDir(t *testing.T) {
	keeper, err := capability.LoadKeeper(t.TempDir())
	if err != nil {
		t.Fatalf("LoadKeeper failed: %v", err)
	}
	if _, err := keeper.Seal("/nonexistent/for/sure"); err == nil {
		t.Error("expected Seal of a missing directory to fail")
	}
}
