// Package dispatch launches a full table of agents against one server from
// a YAML roster, records them in the experiment store, waits for the round
// to finish, and prints a results summary.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"figgie-exchange/internal/agent"
	"figgie-exchange/internal/client"
	"figgie-exchange/pkg/types"
)

// Roster is the YAML experiment description: which server to fill and with
// what agents. Polling rates are on the normalized 0..240 clock and are
// converted to wall-clock seconds against the server's actual trading
// duration at launch time.
type Roster struct {
	ServerURL    string        `yaml:"server_url"`
	ExperimentID int           `yaml:"experiment_id"`
	Agents       []RosterEntry `yaml:"agents"`
}

// RosterEntry is one seat.
type RosterEntry struct {
	Kind        string         `yaml:"kind"`
	Name        string         `yaml:"name"`
	PollingRate float64        `yaml:"polling_rate"`
	Jitter      float64        `yaml:"jitter"`
	Params      map[string]any `yaml:"params"`
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the roster can fill a table.
func (r *Roster) Validate() error {
	if r.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if n := len(r.Agents); n != 4 && n != 5 {
		return fmt.Errorf("roster must have 4 or 5 agents, got %d", n)
	}
	for i, e := range r.Agents {
		if e.Kind == "" {
			return fmt.Errorf("agent %d: kind is required", i)
		}
		if e.PollingRate <= 0 {
			return fmt.Errorf("agent %d: polling_rate must be > 0, got %v", i, e.PollingRate)
		}
		if e.Jitter < 0 || e.Jitter >= 1 {
			return fmt.Errorf("agent %d: jitter must be in [0, 1), got %v", i, e.Jitter)
		}
	}
	return nil
}

// Recorder persists agent registrations. *store.Store satisfies this.
type Recorder interface {
	RegisterAgent(playerID, kind string, params map[string]any, pollingRate float64, experimentID int) error
}

// Dispatcher fills one server with a roster of agents and runs the round
// to completion.
type Dispatcher struct {
	roster   *Roster
	registry *agent.Registry
	recorder Recorder
	http     *resty.Client
	logger   *slog.Logger

	// One join per limiter slot keeps a large roster from stampeding the
	// server the instant the dispatcher starts.
	launcher *rate.Limiter

	agents  []agent.Agent
	clients []*client.Client
}

// New creates a dispatcher. recorder may be nil to skip persistence.
func New(roster *Roster, registry *agent.Registry, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		roster:   roster,
		registry: registry,
		recorder: recorder,
		http: resty.New().
			SetBaseURL(roster.ServerURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
		logger:   logger.With("component", "dispatcher"),
		launcher: rate.NewLimiter(rate.Limit(5), 1),
	}
}

// Preflight checks the server is empty and waiting, and returns its
// configured trading duration in seconds. A server that already has
// players seated, or that is mid-round, is not safe to fill: the roster's
// seat assignment and experiment record would be wrong.
func (d *Dispatcher) Preflight(ctx context.Context) (int, error) {
	var status types.StatusResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/status")
	if err != nil {
		return 0, fmt.Errorf("preflight: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("preflight: server returned %d", resp.StatusCode())
	}
	if status.State != types.StateWaiting {
		return 0, fmt.Errorf("preflight: server is %s, want waiting", status.State)
	}
	if status.CurrentPlayers != 0 {
		return 0, fmt.Errorf("preflight: server already has %d players", status.CurrentPlayers)
	}
	if status.TradingDuration <= 0 {
		return 0, fmt.Errorf("preflight: bad trading_duration %d", status.TradingDuration)
	}
	return status.TradingDuration, nil
}

// WallRate converts a polling rate on the normalized 0..240 clock to
// wall-clock seconds for a server with the given trading duration.
func WallRate(normalizedRate float64, tradingDurationSec int) float64 {
	return normalizedRate * float64(tradingDurationSec) / 240.0
}

// Run preflights the server, launches every agent in the roster, waits for
// the round to complete (or ctx to end), and stops the agents. The last
// completed snapshot stays available for Summary.
func (d *Dispatcher) Run(ctx context.Context) error {
	duration, err := d.Preflight(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("preflight ok", "server", d.roster.ServerURL, "trading_duration", duration)

	for i, e := range d.roster.Agents {
		if err := d.launcher.Wait(ctx); err != nil {
			return fmt.Errorf("launch agent %d: %w", i, err)
		}

		name := e.Name
		if name == "" {
			name = e.Kind + "-" + strconv.Itoa(i)
		}
		c := client.New(client.Config{
			ServerURL:   d.roster.ServerURL,
			Name:        name,
			PollingRate: WallRate(e.PollingRate, duration),
			Jitter:      e.Jitter,
		}, d.logger)

		a, err := d.registry.New(e.Kind, c, e.Params)
		if err != nil {
			d.stopAll()
			return fmt.Errorf("agent %d (%s): %w", i, e.Kind, err)
		}
		if err := a.Start(); err != nil {
			d.stopAll()
			return fmt.Errorf("start agent %d (%s): %w", i, e.Kind, err)
		}
		d.agents = append(d.agents, a)
		d.clients = append(d.clients, c)
		d.logger.Info("agent launched", "kind", e.Kind, "name", name, "player_id", a.PlayerID())

		if d.recorder != nil {
			if err := d.recorder.RegisterAgent(a.PlayerID(), e.Kind, e.Params, e.PollingRate, d.roster.ExperimentID); err != nil {
				d.logger.Warn("agent registration failed", "player_id", a.PlayerID(), "error", err)
			}
		}
	}

	err = d.waitForCompletion(ctx)
	d.stopAll()
	return err
}

// waitForCompletion blocks until every agent has observed the finished
// round, or the context ends.
func (d *Dispatcher) waitForCompletion(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done := true
			for _, a := range d.agents {
				if !a.Completed() {
					done = false
					break
				}
			}
			if done {
				d.logger.Info("round complete, stopping agents")
				return nil
			}
		}
	}
}

func (d *Dispatcher) stopAll() {
	for _, a := range d.agents {
		a.Stop()
	}
}

// Summary writes a results table from the final snapshot. Must be called
// after Run has returned successfully.
func (d *Dispatcher) Summary(w io.Writer) error {
	snap := d.finalSnapshot()
	if snap == nil || snap.Results == nil {
		return fmt.Errorf("no completed snapshot available")
	}
	res := snap.Results

	winners := make(map[string]bool, len(res.Winners))
	for _, pid := range res.Winners {
		winners[pid] = true
	}

	fmt.Fprintf(w, "Goal suit: %s   Pot share per winner: %d\n", res.GoalSuit, res.ShareEach)

	table := tablewriter.NewWriter(w)
	table.Header("Player", "Goal Cards", "Bonus", "Winner", "Balance")
	for _, c := range d.clients {
		pid := c.PlayerID()
		mark := ""
		if winners[pid] {
			mark = "yes"
		}
		table.Append(
			pid,
			strconv.Itoa(res.Counts[pid]),
			strconv.Itoa(res.Bonuses[pid]),
			mark,
			strconv.Itoa(snap.Balances[pid]),
		)
	}
	return table.Render()
}

// finalSnapshot returns the first agent snapshot that carries results.
func (d *Dispatcher) finalSnapshot() *types.Snapshot {
	for _, c := range d.clients {
		if snap := c.Snapshot(); snap != nil && snap.Results != nil {
			return snap
		}
	}
	return nil
}
