// Package telemetry records, per peer, how often that peer was the first to
// inform us of a rumor. It is purely observational: nothing it records ever
// feeds back into the gossiping engine's own decisions.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// PeerRecord holds first-informer statistics for a single peer.
type PeerRecord struct {
	Id                 string  `json:"id"`
	FirstInformedCount int     `json:"first_informed_count"`
	AvgFirstRound      float64 `json:"avg_first_round"`
}

// PeerHistory manages the local first-informer history file.
type PeerHistory struct {
	mu      sync.RWMutex
	path    string
	records map[string]*PeerRecord
}

// NewPeerHistory creates or loads a peer history from the given file path.
func NewPeerHistory(path string) *PeerHistory {
	h := &PeerHistory{
		path:    path,
		records: make(map[string]*PeerRecord),
	}
	_ = h.Load() // best-effort load
	return h
}

// RecordFirstInform records that id was the first peer to inform us of a
// rumor, at the given round, updating the running average round number.
func (h *PeerHistory) RecordFirstInform(id wire.Id, round rumor.Round) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := id.String()
	r, ok := h.records[key]
	if !ok {
		r = &PeerRecord{Id: key}
		h.records[key] = r
	}

	r.FirstInformedCount++
	r.AvgFirstRound += (float64(round) - r.AvgFirstRound) / float64(r.FirstInformedCount)
}

// Get returns a copy of the record for the given peer, or nil if not found.
func (h *PeerHistory) Get(id wire.Id) *PeerRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.records[id.String()]
	if !ok {
		return nil
	}
	copy := *r
	return &copy
}

// Count returns the number of peers tracked.
func (h *PeerHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Load reads the history file from disk.
func (h *PeerHistory) Load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history: %w", err)
	}

	var records map[string]*PeerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	h.mu.Lock()
	h.records = records
	h.mu.Unlock()
	return nil
}

// Save writes the history file to disk atomically.
func (h *PeerHistory) Save() error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.records, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
