package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o rumormesh-node ./cmd/rumormesh-node
var (
	version = "dev"
	commit  = "unknown"
)

// osExit is a package-level indirection over os.Exit so tests can observe
// an attempted exit instead of killing the test binary.
var osExit = os.Exit

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "peer":
		runPeer(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("rumormesh-node %s (%s)\n", version, commit)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: rumormesh-node <command> [options]")
	fmt.Println()
	fmt.Println("  init                                      Set up node configuration")
	fmt.Println("  run [--config path] [--socket path]        Start the node")
	fmt.Println("  whoami [--config path]                      Show this node's id")
	fmt.Println()
	fmt.Println("  peer add <id> [--comment \"...\"] [--addr <multiaddr>]  Authorize a peer")
	fmt.Println("  peer list                                    List authorized peers")
	fmt.Println("  peer remove <id>                             Revoke a peer's access")
	fmt.Println()
	fmt.Println("  version                                      Show version information")
	fmt.Println()
	fmt.Println("run, whoami and peer commands support --config <path> to specify a config file.")
	fmt.Println("Without --config, rumormesh-node searches: ./rumormesh.yaml, ~/.config/rumormesh/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  rumormesh-node init")
}
