package main

import (
	"github.com/spf13/cobra"

	"github.com/slipstream/homecloud/internal/database"
	"github.com/slipstream/homecloud/internal/history"
)

var (
	historyPeer  string
	historyBatch string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent submissions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyPeer, "pid", "", "only show submissions to this peer")
	historyCmd.Flags().StringVar(&historyBatch, "batch", "", "only show one submission batch")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of entries")
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := history.NewService(db.Conn(), log.Logger).List(cmd.Context(), history.ListOptions{
		PeerID:  historyPeer,
		BatchID: historyBatch,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat, list)
}
