// Command rumormesh-demo runs an in-process simulation of N gossiping nodes,
// fully connected over the in-process transport, originates one or more
// rumors from a chosen node, and ticks every node's stepper until every
// active rumor has reached state D or a round budget runs out.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rumormesh/rumormesh/internal/config"
	"github.com/rumormesh/rumormesh/internal/gossiping"
	"github.com/rumormesh/rumormesh/internal/memtransport"
	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/stepper"
	"github.com/rumormesh/rumormesh/internal/termcolor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

var osExit = os.Exit

// messageList collects repeated -message flags into an ordered slice.
type messageList []string

func (m *messageList) String() string { return strings.Join(*m, ",") }
func (m *messageList) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	if err := doRun(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("rumormesh-demo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	nodes := fs.Int("nodes", 20, "number of simulated nodes")
	maxRounds := fs.Int("rounds", 200, "round budget before giving up")
	seed := fs.Int64("seed", 1, "PRNG seed, for reproducible runs")
	from := fs.Int("from", -1, "index of the originating node (-1 = random)")
	workers := fs.Int("workers", config.DefaultWorkerPoolSize, "max nodes ticked concurrently per round")
	var messages messageList
	fs.Var(&messages, "message", "rumor content to originate (repeatable); default is a single \"hello\" rumor")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	if *nodes < 2 {
		return fmt.Errorf("-nodes must be at least 2, got %d", *nodes)
	}
	if *workers < 1 {
		return fmt.Errorf("-workers must be at least 1, got %d", *workers)
	}
	if len(messages) == 0 {
		messages = messageList{"hello"}
	}

	rng := rand.New(rand.NewSource(*seed))
	sim, err := newSimulation(*nodes, rng)
	if err != nil {
		return err
	}

	originIndex := *from
	if originIndex < 0 || originIndex >= len(sim.nodes) {
		originIndex = rng.Intn(len(sim.nodes))
	}
	fmt.Fprintf(stdout, "nodes: %d, origin: node %d (%s)\n", *nodes, originIndex, sim.nodes[originIndex].id.String()[:16]+"...")

	for _, msg := range messages {
		sim.nodes[originIndex].client.Submit(stepper.NewRumor{Content: []byte(msg)})
	}

	sem := semaphore.NewWeighted(int64(*workers))
	ctx := context.Background()

	round := 0
	for ; round < *maxRounds; round++ {
		var wg sync.WaitGroup
		for _, n := range sim.nodes {
			if err := sem.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("acquire worker slot: %w", err)
			}
			wg.Add(1)
			go func(n *simNode) {
				defer wg.Done()
				defer sem.Release(1)
				n.step.Tick()
			}(n)
		}
		wg.Wait()

		active := sim.activeRumorCount()
		if active == 0 {
			fmt.Fprintf(stdout, "round %d: all rumors reached D across every node\n", round+1)
			printFirstInformers(stdout, sim)
			return nil
		}
		if round%10 == 0 || round == *maxRounds-1 {
			fmt.Fprintf(stdout, "round %d: %d active rumor-node pairs remaining\n", round+1, active)
		}
	}

	termcolor.Yellow("round budget of %d exhausted with %d active rumor-node pairs remaining", *maxRounds, sim.activeRumorCount())
	printFirstInformers(stdout, sim)
	return nil
}

func printFirstInformers(stdout io.Writer, sim *simulation) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "first-informer tallies:")
	for id, count := range sim.firstInformCounts {
		fmt.Fprintf(stdout, "  %s...: informed %d peer(s) first\n", id.String()[:16], count)
	}
}

// simNode bundles one simulated node's engine, stepper, and client channel.
type simNode struct {
	id     wire.Id
	engine *gossiping.Gossiping
	client *memtransport.ClientChannel
	step   *stepper.Stepper
}

// simulation wires N fully-connected nodes over internal/memtransport.
// Nodes tick concurrently (bounded by a worker pool), so firstInformMu
// guards the shared tally their SetFirstInformHook callbacks write into.
type simulation struct {
	nodes             []*simNode
	firstInformMu     sync.Mutex
	firstInformCounts map[wire.Id]int
}

func newSimulation(n int, rng *rand.Rand) (*simulation, error) {
	type identity struct {
		id   wire.Id
		pub  ed25519.PublicKey
		priv ed25519.PrivateKey
	}

	identities := make([]identity, n)
	nets := make([]*memtransport.Network, n)
	inboxes := make([]*memtransport.Inbox, n)

	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(rng)
		if err != nil {
			return nil, fmt.Errorf("generate identity %d: %w", i, err)
		}
		id, ok := wire.IdFromPublicKey(pub)
		if !ok {
			return nil, fmt.Errorf("derive id for node %d", i)
		}
		identities[i] = identity{id: id, pub: pub, priv: priv}
		nets[i] = memtransport.NewNetwork(id, pub)
		inboxes[i] = memtransport.NewInbox(0)
	}

	for i := range identities {
		for j := range identities {
			if i == j {
				continue
			}
			nets[i].Register(identities[j].id, inboxes[j])
		}
	}

	sim := &simulation{firstInformCounts: make(map[wire.Id]int)}
	for i, ident := range identities {
		engine := gossiping.New(ident.id, rand.New(rand.NewSource(rng.Int63())))
		for j, other := range identities {
			if i == j {
				continue
			}
			engine.AddPlayer(other.id)
		}
		engine.SetFirstInformHook(func(informer wire.Id, _ rumor.Round) {
			sim.firstInformMu.Lock()
			sim.firstInformCounts[informer]++
			sim.firstInformMu.Unlock()
		})

		client := memtransport.NewClientChannel(0)
		step := stepper.New(engine, ident.id, ident.priv, client, inboxes[i], nets[i].Outbox(), nil, nil, nil)

		sim.nodes = append(sim.nodes, &simNode{
			id:     ident.id,
			engine: engine,
			client: client,
			step:   step,
		})
	}

	return sim, nil
}

func (s *simulation) activeRumorCount() int {
	total := 0
	for _, n := range s.nodes {
		total += n.engine.ActiveRumorCount()
	}
	return total
}
