package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/rumormesh/rumormesh/internal/config"
	"github.com/rumormesh/rumormesh/internal/gossiping"
	"github.com/rumormesh/rumormesh/internal/identity"
	"github.com/rumormesh/rumormesh/internal/memtransport"
	"github.com/rumormesh/rumormesh/internal/metrics"
	"github.com/rumormesh/rumormesh/internal/peerauth"
	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/stepper"
	"github.com/rumormesh/rumormesh/internal/telemetry"
	"github.com/rumormesh/rumormesh/internal/wire"
	"github.com/rumormesh/rumormesh/internal/watchdog"
	"github.com/rumormesh/rumormesh/pkg/p2ptransport"
)

// tickInterval is how often the stepper's cooperative Tick runs against the
// real clock. There is no wall-clock deadline in the protocol itself; this
// just bounds how quickly this node notices new work.
const tickInterval = 100 * time.Millisecond

func runRun(args []string) {
	if err := doRun(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	socketFlag := fs.String("socket", "", "path to control socket (default: <config dir>/control.sock)")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	cfgFile, err := config.FindConfigFile(*configFlag)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		if rbErr := config.Rollback(cfgFile); rbErr == nil {
			slog.Warn("config failed to load, rolled back to last known-good archive", "path", cfgFile, "error", err)
			cfg, err = config.LoadNodeConfig(cfgFile)
		}
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	configDir := filepath.Dir(cfgFile)
	config.ResolveConfigPaths(cfg, configDir)
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Archive(cfgFile); err != nil {
		slog.Warn("failed to archive config", "path", cfgFile, "error", err)
	}

	socketPath := *socketFlag
	if socketPath == "" {
		socketPath = filepath.Join(configDir, "control.sock")
	}

	id, err := identity.LoadOrCreateIdentity(cfg.Identity.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	fmt.Fprintf(stdout, "node id: %s\n", id.Id.String())

	n, err := newNode(cfg, id, configDir)
	if err != nil {
		return err
	}
	defer n.close()

	fmt.Fprintf(stdout, "listening on: %v\n", n.transport.Host().Addrs())
	fmt.Fprintf(stdout, "control socket: %s\n", socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to open control socket: %w", err)
	}
	defer os.Remove(socketPath)
	defer listener.Close()
	go serveControlSocket(listener, n.client)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Metrics.Enabled {
		go serveMetrics(cfg.Telemetry.Metrics.ListenAddress, n.metrics)
	}

	go watchdogLoop(ctx, n.step)

	runTickLoop(ctx, n.step, n.client)

	n.history.Save()
	return nil
}

// node bundles every long-lived component a running rumormesh-node owns.
type node struct {
	transport *p2ptransport.Network
	gater     *peerauth.AuthorizedPeerGater
	metrics   *metrics.Metrics
	audit     *metrics.AuditLogger
	history   *telemetry.PeerHistory
	client    *memtransport.ClientChannel
	step      *stepper.Stepper
}

func newNode(cfg *config.NodeConfig, id *identity.Identity, configDir string) (*node, error) {
	authorized, err := peerauth.LoadAuthorizedKeys(cfg.Peers.AuthorizedKeysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorized_peers: %w", err)
	}
	entries, err := peerauth.ListPeers(cfg.Peers.AuthorizedKeysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorized_peers: %w", err)
	}

	var gater *peerauth.AuthorizedPeerGater
	transportCfg := p2ptransport.Config{ListenAddresses: cfg.Network.ListenAddresses}
	if cfg.Peers.EnableConnectionGating {
		pidSet, err := peerauth.ToPeerIDSet(authorized)
		if err != nil {
			return nil, fmt.Errorf("failed to build peer id set: %w", err)
		}
		gater = peerauth.NewAuthorizedPeerGater(pidSet)
		transportCfg.Gater = gater
	}

	transport, err := p2ptransport.New(id.PrivateKey, transportCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start transport: %w", err)
	}

	engine := gossiping.New(id.Id, nil)
	for peerId := range authorized {
		engine.AddPlayer(peerId)
	}
	for _, entry := range entries {
		if entry.Addr == "" {
			continue
		}
		addrInfo, err := addrInfoFromMultiaddr(entry.Addr)
		if err != nil {
			slog.Warn("skipping peer with unparsable addr", "peer", entry.Id, "addr", entry.Addr, "error", err)
			continue
		}
		transport.RegisterPeer(entry.Id, addrInfo)
	}

	m := metrics.NewMetrics(version, runtime.Version())
	engine.SetAdvanceHook(func(s rumor.State) {
		m.RoundsAdvancedTotal.WithLabelValues(stepper.RumorStateLabel(s)).Inc()
	})

	var audit *metrics.AuditLogger
	if cfg.Telemetry.Audit.Enabled {
		audit = metrics.NewAuditLogger(slog.Default().Handler())
	}
	if gater != nil {
		gater.SetDecisionCallback(func(peerID, result string) {
			if result == "deny" {
				audit.GaterDenied(peerID, "unauthorized_or_expired")
			}
		})
	}

	history := telemetry.NewPeerHistory(filepath.Join(configDir, "peer_history.json"))
	engine.SetFirstInformHook(func(informer wire.Id, round rumor.Round) {
		history.RecordFirstInform(informer, round)
	})

	client := memtransport.NewClientChannel(0)
	step := stepper.New(engine, id.Id, id.PrivateKey, client, transport.Inbox(), transport.Outbox(), m, audit, slog.Default())

	return &node{
		transport: transport,
		gater:     gater,
		metrics:   m,
		audit:     audit,
		history:   history,
		client:    client,
		step:      step,
	}, nil
}

func (n *node) close() {
	n.transport.Close()
}

func addrInfoFromMultiaddr(s string) (peer.AddrInfo, error) {
	maddr, err := ma.NewMultiaddr(s)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	return *info, nil
}

func runTickLoop(ctx context.Context, step *stepper.Stepper, client *memtransport.ClientChannel) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Submit(stepper.Shutdown{})
			step.Tick()
			return
		case <-ticker.C:
			step.Tick()
			if step.Done() {
				return
			}
		}
	}
}

// watchdogLoop proves the stepper's tick loop is still alive, not that any
// particular HTTP surface is healthy — there isn't one to check.
func watchdogLoop(ctx context.Context, step *stepper.Stepper) {
	if err := watchdog.Ready(); err != nil {
		slog.Warn("sd_notify READY failed", "error", err)
	}
	checks := []watchdog.HealthCheck{
		{Name: "stepper", Check: func() error {
			if step.Done() {
				return fmt.Errorf("stepper has shut down")
			}
			return nil
		}},
	}
	watchdog.Run(ctx, watchdog.Config{}, checks)
	watchdog.Stopping()
}

func serveMetrics(addr string, m *metrics.Metrics) {
	if addr == "" {
		addr = "127.0.0.1:9091"
	}
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server stopped", "error", err)
	}
}

// controlRequest is the one-line-JSON shape accepted on the control socket.
type controlRequest struct {
	Cmd     string `json:"cmd"`
	Content string `json:"content,omitempty"` // base64, for "new_rumor"
}

type controlResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func serveControlSocket(l net.Listener, client *memtransport.ClientChannel) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go handleControlConn(conn, client)
	}
}

func handleControlConn(conn net.Conn, client *memtransport.ClientChannel) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var req controlRequest
	resp := controlResponse{Ok: true}
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		resp = controlResponse{Ok: false, Error: fmt.Sprintf("invalid request: %v", err)}
		writeControlResponse(conn, resp)
		return
	}

	switch req.Cmd {
	case "new_rumor":
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			resp = controlResponse{Ok: false, Error: fmt.Sprintf("invalid content: %v", err)}
			break
		}
		client.Submit(stepper.NewRumor{Content: content})
	case "shutdown":
		client.Submit(stepper.Shutdown{})
	default:
		resp = controlResponse{Ok: false, Error: fmt.Sprintf("unknown cmd: %q", req.Cmd)}
	}

	writeControlResponse(conn, resp)
}

func writeControlResponse(conn net.Conn, resp controlResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.Write(append(data, '\n'))
}
