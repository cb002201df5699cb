package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardUser, "user", "", "Also show this user's rank")
	rootCmd.AddCommand(leaderboardCmd)
}

var leaderboardUser string

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard <challenge-id>",
	Short: "Show the ranked finishers of a challenge",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	board, err := d.Challenges.GetLeaderboard(cmd.Context(), args[0], leaderboardUser)
	if err != nil {
		return err
	}
	if len(board.Entries) == 0 {
		fmt.Println("Nobody has finished this challenge yet.")
		return nil
	}

	w := newTable()
	fmt.Fprintln(w, "RANK\tUSER\tSCORE\tPERCENTILE\tCOMPLETED")
	for _, e := range board.Entries {
		pct := "-"
		if e.Percentile != nil {
			pct = fmt.Sprintf("%d", *e.Percentile)
		}
		fmt.Fprintf(w, "%d\t%s\t%d%%\t%s\t%s\n", e.Rank, e.DisplayName, e.FinalScore, pct, e.CompletedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if board.Me != nil {
		fmt.Printf("\nYou: rank %d with %d%%\n", board.Me.Rank, board.Me.FinalScore)
	}
	return nil
}
