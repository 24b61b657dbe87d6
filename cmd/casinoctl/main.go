package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/engine"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/sim"
	"github.com/avvvet/casino-services/internal/casino/store"
	"github.com/shopspring/decimal"
)

func main() {
	root := &cobra.Command{
		Use:          "casinoctl",
		Short:        "Operator tools for the casino engine",
		SilenceUsage: true,
	}

	root.AddCommand(newRTPCmd(), newSnapshotCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRTPCmd() *cobra.Command {
	var seed int64
	var rounds int

	cmd := &cobra.Command{
		Use:   "rtp",
		Short: "Simulate games and report return to player",
	}
	cmd.PersistentFlags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.PersistentFlags().IntVar(&rounds, "rounds", 100000, "rounds to play")

	slotsCmd := &cobra.Command{
		Use:   "slots",
		Short: "Spin the slot machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			printReport(sim.Slots(rng.New(seed), rounds))
			return nil
		},
	}

	var picks int
	kenoCmd := &cobra.Command{
		Use:   "keno",
		Short: "Play one quick-picked slip per draw",
		RunE: func(cmd *cobra.Command, args []string) error {
			if picks < 1 || picks > 6 {
				return fmt.Errorf("picks must be between 1 and 6")
			}
			printReport(sim.Keno(rng.New(seed), rounds, picks))
			return nil
		},
	}
	kenoCmd.Flags().IntVar(&picks, "picks", 6, "numbers per slip")

	var target float64
	crashCmd := &cobra.Command{
		Use:   "crash",
		Short: "Bet every round and cash out at a fixed target",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target <= 1 {
				return fmt.Errorf("target must be above 1.00")
			}
			printReport(sim.Crash(rng.New(seed), rounds, target, crash.DefaultConfig().HouseEdge))
			return nil
		},
	}
	crashCmd.Flags().Float64Var(&target, "target", 2, "cashout multiplier")

	cmd.AddCommand(slotsCmd, kenoCmd, crashCmd)
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the latest file snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := store.NewFileSnapshots(dir)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			data, err := fs.Load(ctx)
			if err != nil {
				return err
			}
			if data == nil {
				printWarn("No snapshot in %s", dir)
				return nil
			}
			var st engine.State
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			printState(st)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".data", "snapshot directory")
	return cmd
}

func printReport(r sim.Report) {
	accent.Printf("%s\n", r.Game)
	fmt.Printf("  rounds      %d\n", r.Rounds)
	fmt.Printf("  wagered     %s\n", r.Wagered.StringFixed(2))
	fmt.Printf("  paid        %s\n", r.Paid.StringFixed(2))
	fmt.Printf("  hit rate    %.2f%%\n", r.HitRate()*100)
	fmt.Printf("  max         %.2fx\n", r.MaxMultiplier)
	rtp := r.RTP() * 100
	line := fmt.Sprintf("  rtp         %.2f%%\n", rtp)
	if rtp > 100 {
		danger.Print(line)
	} else {
		success.Print(line)
	}
}

func printState(st engine.State) {
	accent.Printf("snapshot v%d saved %s\n", st.Version, st.SavedAt.Format(time.RFC3339))

	players := st.Ledger.Players
	sort.Slice(players, func(i, j int) bool { return players[i].Username < players[j].Username })
	total := decimal.Zero
	for _, p := range players {
		total = total.Add(p.Balance)
		fmt.Printf("  %-20s %12s  %-8s %d games\n", p.Username, p.Balance.StringFixed(2), p.Tier, p.GamesPlayed)
	}
	fmt.Printf("  %d players holding %s\n", len(players), total.StringFixed(2))
	if len(st.Accounts) > 0 {
		fmt.Printf("  %d accounts kept with the snapshot\n", len(st.Accounts))
	}

	s := st.Ledger.Stats
	fmt.Printf("  wagered %s paid %s over %d games\n", s.TotalWagered.StringFixed(2), s.TotalPayouts.StringFixed(2), s.TotalGames)
	fmt.Printf("  crash round %d %s, keno draw %d %s, %d slot machines\n",
		st.Crash.RoundNumber, st.Crash.Phase, st.Keno.CurrentDraw, st.Keno.Phase, len(st.Slots))
}
