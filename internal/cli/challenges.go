package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	challengesCmd.Flags().StringVar(&challengesUser, "user", "", "Show progress for this user")
	rootCmd.AddCommand(challengesCmd)
}

var challengesUser string

var challengesCmd = &cobra.Command{
	Use:     "challenges",
	Aliases: []string{"ls"},
	Short:   "List active challenges",
	RunE:    runChallenges,
}

func runChallenges(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	views, err := d.Challenges.GetAllActive(cmd.Context(), challengesUser)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("No active challenges. Run 'studyforge generate daily' to create some.")
		return nil
	}

	w := newTable()
	if challengesUser == "" {
		fmt.Fprintln(w, "ID\tTYPE\tTITLE\tTARGET\tENDS")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", v.ID, v.Type, v.Title, v.Target, v.EndDate.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tPROGRESS\tSTATUS")
	for _, v := range views {
		status := "-"
		switch {
		case v.Completed:
			status = "completed"
		case v.Joined:
			status = "joined"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", v.ID, v.Type, v.Title, v.Progress, v.Target, status)
	}
	return w.Flush()
}
