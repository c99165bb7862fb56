// Package cli builds the bridgewatch cobra command tree: serve (run the
// pipeline), watch (live TUI against a running instance's debug endpoint),
// and vessels (one-shot table dump), mirroring the teacher's ec.go command
// layout.
package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/trollbridge/bridgewatch/internal/host"
)

// Root builds the top-level bridgewatch command. runServe is injected by
// main so this package stays free of the concrete pipeline wiring.
func Root(runServe func(cmd *cobra.Command) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "bridgewatch",
		Short: "Trollhätte canal bridge-text pipeline",
	}

	var debugAddr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the AIS ingestion and bridge-text pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the live TUI dashboard against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(debugAddr)
		},
	}

	vesselsCmd := &cobra.Command{
		Use:   "vessels",
		Short: "Print the currently tracked vessels as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listVessels(debugAddr)
		},
	}

	for _, c := range []*cobra.Command{watchCmd, vesselsCmd} {
		c.Flags().StringVar(&debugAddr, "debug-addr", "http://localhost:8090", "address of a running instance's debug endpoint")
	}

	root.AddCommand(serveCmd, watchCmd, vesselsCmd)
	return root
}

func fetchSnapshot(debugAddr string) (host.Snapshot, error) {
	resp, err := http.Get(debugAddr + "/api/snapshot")
	if err != nil {
		return host.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	var snap host.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return host.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func listVessels(debugAddr string) error {
	snap, err := fetchSnapshot(debugAddr)
	if err != nil {
		return err
	}

	tbl := table.New("MMSI", "Name", "Status", "Target", "ETA (min)")
	tbl.WithWriter(os.Stdout)
	for _, v := range snap.Vessels {
		eta := "-"
		if v.HasETA {
			eta = fmt.Sprintf("%.0f", v.ETAMinutes)
		}
		tbl.AddRow(v.MMSI, v.ShipName, v.Status.String(), v.TargetBridge, eta)
	}
	tbl.Print()
	return nil
}

func watch(debugAddr string) error {
	for {
		snap, err := fetchSnapshot(debugAddr)
		if err == nil {
			fmt.Print("\033[H\033[2J")
			fmt.Println("bridgewatch —", time.Now().Format(time.Kitchen))
			for bridge, text := range snap.BridgeText {
				fmt.Printf("%-20s %s\n", bridge, text)
			}
		}
		time.Sleep(2 * time.Second)
	}
}
