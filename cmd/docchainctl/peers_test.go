package main

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/TorporOverload/DocChainValidator/internal/p2p"
	"github.com/TorporOverload/DocChainValidator/internal/testutil"
)

func TestAddPeerToFileCreatesFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("peers.json")
	if err := addPeerToFile(path, "127.0.0.1:7700"); err != nil {
		t.Fatalf("addPeerToFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var known map[string]string
	if err := json.Unmarshal(raw, &known); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	id := p2p.DerivePeerID("127.0.0.1:7700")
	if known[id] != "127.0.0.1:7700" {
		t.Fatalf("expected peer entry for %s, got %v", id, known)
	}
}

func TestAddPeerToFilePreservesExisting(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("peers.json")
	if err := addPeerToFile(path, "127.0.0.1:7700"); err != nil {
		t.Fatalf("addPeerToFile first: %v", err)
	}
	if err := addPeerToFile(path, "127.0.0.1:7701"); err != nil {
		t.Fatalf("addPeerToFile second: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var known map[string]string
	if err := json.Unmarshal(raw, &known); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(known) != 2 {
		t.Fatalf("expected 2 peers, got %d: %v", len(known), known)
	}
}

func TestAddPeerToFileDedupesSameEndpoint(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("peers.json")
	if err := addPeerToFile(path, "127.0.0.1:7700"); err != nil {
		t.Fatalf("addPeerToFile first: %v", err)
	}
	if err := addPeerToFile(path, "127.0.0.1:7700"); err != nil {
		t.Fatalf("addPeerToFile second: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var known map[string]string
	if err := json.Unmarshal(raw, &known); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(known) != 1 {
		t.Fatalf("expected the same endpoint to dedupe to 1 entry, got %d: %v", len(known), known)
	}
}
