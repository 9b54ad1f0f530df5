package geo

import (
	"errors"
	"testing"
)

func TestUnconfiguredResolver(t *testing.T) {
	g, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = g.Close() }()

	ok, reason := g.Available()
	if ok || reason == "" {
		t.Errorf("Available = %v %q, want unavailable with reason", ok, reason)
	}
	if _, err := g.Locate("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Locate error = %v, want ErrUnavailable", err)
	}
}

func TestLocateLocalAddresses(t *testing.T) {
	// Local addresses never reach the MMDB reader, so a readerless resolver
	// exercises the classification path.
	g := &Resolver{}
	for _, ip := range []string{"127.0.0.1", "::1", "10.0.0.1", "192.168.1.1", "0.0.0.0", "fe80::1", "not-an-ip"} {
		if _, err := g.Locate(ip); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Locate(%q) = %v, want ErrUnavailable", ip, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("/does/not/exist.mmdb"); err == nil {
		t.Error("Open of a missing database should fail")
	}
}
