package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rumormesh/rumormesh/internal/config"
	"github.com/rumormesh/rumormesh/internal/metrics"
	"github.com/rumormesh/rumormesh/internal/peerauth"
	"github.com/rumormesh/rumormesh/internal/termcolor"
)

func runPeer(args []string) {
	if len(args) < 1 {
		printPeerUsage()
		osExit(1)
	}

	switch args[0] {
	case "add":
		runPeerAdd(args[1:])
	case "list":
		runPeerList(args[1:])
	case "remove":
		runPeerRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown peer command: %s\n\n", args[0])
		printPeerUsage()
		osExit(1)
	}
}

func printPeerUsage() {
	fmt.Println("Usage: rumormesh-node peer <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add    <id> [--comment \"label\"] [--addr <multiaddr>]   Authorize a peer")
	fmt.Println("  list                                                   List authorized peers")
	fmt.Println("  remove <id>                                            Revoke a peer's access")
	fmt.Println()
	fmt.Println("All commands support --config <path> and --file <path>.")
}

// resolveAuthKeysPath finds the authorized_peers file path: the --file flag
// takes priority over the config's peers.authorized_keys_file.
func resolveAuthKeysPath(fileFlag, configFlag string) (string, error) {
	if fileFlag != "" {
		return fileFlag, nil
	}

	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return "", fmt.Errorf("config error: %w\nUse --file to specify an authorized_peers path directly", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return "", fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))

	if cfg.Peers.AuthorizedKeysFile == "" {
		return "", fmt.Errorf("no peers.authorized_keys_file in config; use --file to specify a path")
	}
	return cfg.Peers.AuthorizedKeysFile, nil
}

func runPeerAdd(args []string) {
	if err := doPeerAdd(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doPeerAdd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("peer add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_peers file (overrides config)")
	commentFlag := fs.String("comment", "", "optional comment for this peer")
	addrFlag := fs.String("addr", "", "optional dial multiaddr, e.g. /ip4/203.0.113.9/tcp/4001/p2p/<peer-id>")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: rumormesh-node peer add <id> [--comment \"label\"] [--addr <multiaddr>]")
	}
	idStr := fs.Arg(0)

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}

	if err := peerauth.AddPeer(authKeysPath, idStr, *commentFlag); err != nil {
		return fmt.Errorf("failed to add peer: %w", err)
	}
	if *addrFlag != "" {
		if err := peerauth.SetPeerAttr(authKeysPath, idStr, "addr", *addrFlag); err != nil {
			return fmt.Errorf("failed to set dial address: %w", err)
		}
	}
	metrics.NewAuditLogger(slog.Default().Handler()).AuthChange("add", idStr)

	termcolor.Green("Authorized peer: %s", idStr[:min(16, len(idStr))]+"...")
	if *commentFlag != "" {
		fmt.Fprintf(stdout, "  Comment: %s\n", *commentFlag)
	}
	if *addrFlag != "" {
		fmt.Fprintf(stdout, "  Addr: %s\n", *addrFlag)
	}
	fmt.Fprintf(stdout, "  File: %s\n", authKeysPath)
	return nil
}

func runPeerList(args []string) {
	if err := doPeerList(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doPeerList(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("peer list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_peers file (overrides config)")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}

	entries, err := peerauth.ListPeers(authKeysPath)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No authorized peers.")
		return nil
	}

	fmt.Fprintf(stdout, "Authorized peers (%d):\n\n", len(entries))
	for i, entry := range entries {
		short := entry.Id.String()[:16] + "..."
		if entry.Comment != "" {
			fmt.Fprintf(stdout, "  %d. %s  # %s\n", i+1, short, entry.Comment)
		} else {
			fmt.Fprintf(stdout, "  %d. %s\n", i+1, short)
		}

		detail := entry.Id.String()
		if entry.Addr != "" {
			detail += " [addr=" + entry.Addr + "]"
		}
		if !entry.ExpiresAt.IsZero() {
			detail += " [expires=" + entry.ExpiresAt.Format("2006-01-02") + "]"
		}
		termcolor.Faint("     %s\n", detail)
	}
	fmt.Fprintf(stdout, "\nFile: %s\n", authKeysPath)
	return nil
}

func runPeerRemove(args []string) {
	if err := doPeerRemove(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doPeerRemove(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("peer remove", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_peers file (overrides config)")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: rumormesh-node peer remove <id>")
	}
	idStr := fs.Arg(0)

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}

	if err := peerauth.RemovePeer(authKeysPath, idStr); err != nil {
		return fmt.Errorf("failed to remove peer: %w", err)
	}
	metrics.NewAuditLogger(slog.Default().Handler()).AuthChange("remove", idStr)

	termcolor.Green("Revoked peer: %s", idStr[:min(16, len(idStr))]+"...")
	fmt.Fprintf(stdout, "  File: %s\n", authKeysPath)
	return nil
}
