package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/domain"
)

func init() {
	generateCmd.Flags().StringVar(&generateDate, "date", "", "Day to generate daily challenges for (YYYY-MM-DD)")
	rootCmd.AddCommand(generateCmd)
}

var generateDate string

var generateCmd = &cobra.Command{
	Use:       "generate <daily|weekly|monthly|hot>",
	Short:     "Generate challenges for a cadence now",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "weekly", "monthly", "hot"},
	RunE:      runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ct, err := domain.ParseChallengeType(args[0])
	if err != nil {
		return err
	}
	if generateDate != "" && ct != domain.ChallengeDaily {
		return fmt.Errorf("--date is only supported for daily challenges")
	}

	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	var res *domain.GenerationResult
	switch ct {
	case domain.ChallengeDaily:
		var day time.Time
		if generateDate != "" {
			day, err = time.ParseInLocation("2006-01-02", generateDate, d.Challenges.Location())
			if err != nil {
				return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", generateDate)
			}
		}
		res, err = d.Challenges.GenerateDaily(ctx, day)
	case domain.ChallengeWeekly:
		res, err = d.Challenges.GenerateWeekly(ctx)
	case domain.ChallengeMonthly:
		res, err = d.Challenges.GenerateMonthly(ctx)
	case domain.ChallengeHot:
		res, err = d.Challenges.GenerateHot(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s window %s → %s\n", res.Type,
		res.Window.Start.Format("2006-01-02 15:04"), res.Window.End.Format("2006-01-02 15:04"))
	w := newTable()
	fmt.Fprintln(w, "STATUS\tTEMPLATE\tTITLE\tDETAIL")
	for _, c := range res.Created {
		fmt.Fprintf(w, "created\t%s\t%s\t%s\n", c.TemplateID, c.Title, c.ID)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "skipped\t%s\t%s\t%s\n", s.TemplateID, s.Title, s.Reason)
	}
	return w.Flush()
}
