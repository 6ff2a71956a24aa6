package peerauth

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumormesh/rumormesh/internal/wire"
)

// PeerEntry represents an authorized peer with optional comment and attributes.
type PeerEntry struct {
	Id        wire.Id
	Comment   string
	ExpiresAt time.Time // zero = never expires
	Addr      string    // optional dial multiaddr, e.g. "/ip4/203.0.113.9/tcp/4001/p2p/<peer-id>"
}

// sanitizeComment strips characters that could corrupt the authorized_peers
// file format: newlines (line injection), carriage returns, and null bytes.
func sanitizeComment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == 0 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseLine parses a single authorized_peers line into its components.
// Format: <id> [key=value ...] [# comment]
// Returns the id string, attributes map, and comment. Returns an empty id
// string for comment-only or empty lines.
func parseLine(line string) (idStr string, attrs map[string]string, comment string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", nil, ""
	}

	parts := strings.SplitN(trimmed, "#", 2)
	dataPart := strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		comment = strings.TrimSpace(parts[1])
	}

	if dataPart == "" {
		return "", nil, comment
	}

	fields := strings.Fields(dataPart)
	idStr = fields[0]

	for _, field := range fields[1:] {
		if k, v, ok := strings.Cut(field, "="); ok {
			if attrs == nil {
				attrs = make(map[string]string)
			}
			attrs[k] = v
		}
	}

	return idStr, attrs, comment
}

// formatLine reconstructs an authorized_peers line from components.
func formatLine(idStr string, attrs map[string]string, comment string) string {
	var b strings.Builder
	b.WriteString(idStr)

	if v, ok := attrs["expires"]; ok {
		b.WriteString("  expires=")
		b.WriteString(v)
	}
	if v, ok := attrs["addr"]; ok {
		b.WriteString("  addr=")
		b.WriteString(v)
	}
	for k, v := range attrs {
		if k == "expires" || k == "addr" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}

	if comment != "" {
		b.WriteString("  # ")
		b.WriteString(comment)
	}

	return b.String()
}

// SetPeerAttr sets or updates an attribute on an existing id in the
// authorized_peers file. Uses atomic write via temp file + rename.
func SetPeerAttr(authKeysPath, idStr, key, value string) error {
	targetId, err := wire.ParseId(idStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidId, err)
	}

	file, err := os.Open(authKeysPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	var newLines []string
	scanner := bufio.NewScanner(file)
	found := false

	for scanner.Scan() {
		line := scanner.Text()
		lineIdStr, attrs, comment := parseLine(line)

		if lineIdStr == "" {
			newLines = append(newLines, line)
			continue
		}

		id, err := wire.ParseId(lineIdStr)
		if err != nil {
			newLines = append(newLines, line)
			continue
		}

		if id == targetId {
			found = true
			if attrs == nil {
				attrs = make(map[string]string)
			}
			if value == "" {
				delete(attrs, key)
			} else {
				attrs[key] = value
			}
			newLines = append(newLines, formatLine(lineIdStr, attrs, comment))
		} else {
			newLines = append(newLines, line)
		}
	}
	file.Close()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrIdNotFound, targetId)
	}

	return atomicWriteLines(authKeysPath, newLines)
}

// atomicWriteLines writes lines to a file atomically via temp file + rename.
func atomicWriteLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".authorized_peers.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if err := tempFile.Chmod(0600); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	for _, line := range lines {
		if _, err := tempFile.WriteString(line + "\n"); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write temp file: %w", err)
		}
	}
	tempFile.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to update file: %w", err)
	}

	return nil
}

// AddPeer validates and appends an id to the authorized_peers file.
func AddPeer(authKeysPath, idStr, comment string) error {
	id, err := wire.ParseId(idStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidId, err)
	}

	if _, err := os.Stat(authKeysPath); err == nil {
		existing, err := LoadAuthorizedKeys(authKeysPath)
		if err != nil {
			return fmt.Errorf("failed to read existing file: %w", err)
		}
		if existing[id] {
			return fmt.Errorf("%w: %s", ErrIdAlreadyAuthorized, id)
		}
	}

	comment = sanitizeComment(comment)

	entry := id.String()
	if comment != "" {
		entry = fmt.Sprintf("%s  # %s", entry, comment)
	}
	entry += "\n"

	f, err := os.OpenFile(authKeysPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	return nil
}

// RemovePeer removes an id from the authorized_peers file using atomic write.
func RemovePeer(authKeysPath, idStr string) error {
	targetId, err := wire.ParseId(idStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidId, err)
	}

	file, err := os.Open(authKeysPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	var newLines []string
	scanner := bufio.NewScanner(file)
	found := false

	for scanner.Scan() {
		line := scanner.Text()
		lineIdStr, _, _ := parseLine(line)

		if lineIdStr == "" {
			newLines = append(newLines, line)
			continue
		}

		id, err := wire.ParseId(lineIdStr)
		if err != nil {
			newLines = append(newLines, line)
			continue
		}

		if id == targetId {
			found = true
			continue
		}

		newLines = append(newLines, line)
	}
	file.Close()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrIdNotFound, targetId)
	}

	return atomicWriteLines(authKeysPath, newLines)
}

// ListPeers reads the authorized_peers file and returns all entries
// including attributes (expires).
func ListPeers(authKeysPath string) ([]PeerEntry, error) {
	file, err := os.Open(authKeysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var entries []PeerEntry
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		idStr, attrs, comment := parseLine(scanner.Text())
		if idStr == "" {
			continue
		}

		id, err := wire.ParseId(idStr)
		if err != nil {
			continue
		}

		entry := PeerEntry{Id: id, Comment: comment}

		if v, ok := attrs["expires"]; ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				entry.ExpiresAt = t
			}
		}
		if v, ok := attrs["addr"]; ok {
			entry.Addr = v
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return entries, nil
}
