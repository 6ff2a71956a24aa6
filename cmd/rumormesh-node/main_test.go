package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// exitSentinel is panicked by the osExit replacement installed in
// captureExit, so a call to osExit unwinds the stack instead of killing the
// test binary.
type exitSentinel int

// captureExit overrides the package-level osExit variable so calls to it
// inside fn are intercepted. It returns the exit code and whether osExit
// was actually called.
func captureExit(fn func()) (code int, exited bool) {
	old := osExit
	defer func() { osExit = old }()

	osExit = func(c int) {
		panic(exitSentinel(c))
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if s, ok := r.(exitSentinel); ok {
					code = int(s)
					exited = true
				} else {
					panic(r)
				}
			}
		}()
		fn()
	}()
	return code, exited
}

// writeTestConfigDir runs doInit against a fresh temp directory and returns
// the resulting config.yaml path.
func writeTestConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := doInit([]string{"--dir", dir}, io.Discard); err != nil {
		t.Fatalf("doInit: %v", err)
	}
	return filepath.Join(dir, "config.yaml")
}

func TestMain_NoArgs(t *testing.T) {
	old := os.Args
	os.Args = []string{"rumormesh-node"}
	defer func() { os.Args = old }()

	code, exited := captureExit(main)
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestMain_UnknownCommand(t *testing.T) {
	old := os.Args
	os.Args = []string{"rumormesh-node", "bogus"}
	defer func() { os.Args = old }()

	var buf bytes.Buffer
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	code, exited := captureExit(main)

	w.Close()
	os.Stderr = oldStderr
	io.Copy(&buf, r)

	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestMain_Version(t *testing.T) {
	old := os.Args
	os.Args = []string{"rumormesh-node", "version"}
	defer func() { os.Args = old }()

	code, exited := captureExit(main)
	if exited {
		t.Errorf("version should not exit, got code=%d", code)
	}
}
