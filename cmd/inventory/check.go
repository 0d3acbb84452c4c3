package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphinventory/internal/api"
	"github.com/rohankatakam/graphinventory/internal/availability"
	"github.com/rohankatakam/graphinventory/internal/graph"
)

var (
	checkCached bool
	checkServer string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the graph store is available",
	Long: `check probes the configured graph store directly (ACTUAL).

With --cached it instead asks a running "inventory serve" for its cached
verdict, which may be unknown if nothing has probed since start or the
last clear.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkCached, "cached", false, "report the serving process's cached verdict instead of probing")
	checkCmd.Flags().StringVar(&checkServer, "server", "", "base URL of the serving process (default: derived from server.listen_addr)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if checkCached {
		resp, err := fetchCached(ctx, serverURL())
		if err != nil {
			return err
		}
		fmt.Printf("Graph store (%s, cached): %s\n", cfg.Graph.Backend, resp.Status)
		if resp.LastProbe != nil {
			fmt.Printf("  Last probe: %s\n", resp.LastProbe.Format(time.RFC3339))
		}
		if resp.Status == availability.StatusUnavailable.String() {
			return fmt.Errorf("graph store unavailable")
		}
		return nil
	}

	store, err := graph.Open(ctx, cfg.Graph)
	if err != nil {
		return fmt.Errorf("graph store unavailable: %w", err)
	}
	defer store.Close(ctx)

	checker := availability.NewChecker(store, availability.WithProbeTimeout(cfg.Availability.ProbeTimeout))
	status, at := checker.Check(ctx, availability.Actual)

	fmt.Printf("Graph store (%s, actual): %s\n", cfg.Graph.Backend, status)
	fmt.Printf("  Probed at: %s\n", at.Format(time.RFC3339))
	if !status.Available() {
		return fmt.Errorf("graph store unavailable")
	}
	return nil
}

func serverURL() string {
	if checkServer != "" {
		return strings.TrimRight(checkServer, "/")
	}
	addr := cfg.Server.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func fetchCached(ctx context.Context, base string) (*api.HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz?mode=cached", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", base, err)
	}
	defer resp.Body.Close()

	var body api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("unexpected response from %s (HTTP %d): %w", base, resp.StatusCode, err)
	}
	return &body, nil
}
