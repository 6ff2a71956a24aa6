package main

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

func TestDoRun_ConvergesSmallMesh(t *testing.T) {
	var buf bytes.Buffer
	err := doRun([]string{"-nodes", "6", "-rounds", "200", "-seed", "42"}, &buf)
	if err != nil {
		t.Fatalf("doRun: %v", err)
	}
	if !strings.Contains(buf.String(), "all rumors reached D") {
		t.Errorf("expected convergence message, got:\n%s", buf.String())
	}
}

func TestDoRun_RejectsTooFewNodes(t *testing.T) {
	err := doRun([]string{"-nodes", "1"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for -nodes 1")
	}
}

func TestDoRun_MultipleMessagesFromChosenOrigin(t *testing.T) {
	var buf bytes.Buffer
	err := doRun([]string{
		"-nodes", "8",
		"-rounds", "200",
		"-seed", "7",
		"-from", "0",
		"-message", "first",
		"-message", "second",
	}, &buf)
	if err != nil {
		t.Fatalf("doRun: %v", err)
	}
	if !strings.Contains(buf.String(), "origin: node 0") {
		t.Errorf("expected explicit origin in output, got:\n%s", buf.String())
	}
}

func TestNewSimulation_FullyConnects(t *testing.T) {
	sim, err := newSimulation(5, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("newSimulation: %v", err)
	}
	if len(sim.nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(sim.nodes))
	}
	for _, n := range sim.nodes {
		if n.engine.PeerCount() != 4 {
			t.Errorf("node %s: expected 4 peers, got %d", n.id, n.engine.PeerCount())
		}
	}
}
