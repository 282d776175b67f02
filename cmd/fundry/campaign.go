package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/fundry/internal/ledger"
	"github.com/foxzi/fundry/internal/payout"
)

var (
	campaignListOpen   bool
	campaignListLimit  int
	campaignListOffset int

	campaignCreateTitle       string
	campaignCreateDescription string
	campaignCreateRecipient   string
	campaignCreateGoal        uint64
	campaignCreateDuration    time.Duration
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign management commands",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show campaign details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new campaign",
	RunE:  runCampaignCreate,
}

var campaignEndCmd = &cobra.Command{
	Use:   "end <campaign_id>",
	Short: "Settle a campaign whose deadline has passed",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignEnd,
}

func init() {
	campaignListCmd.Flags().BoolVar(&campaignListOpen, "open", false, "Only show campaigns that have not settled")
	campaignListCmd.Flags().IntVar(&campaignListLimit, "limit", 50, "Maximum number of campaigns to show")
	campaignListCmd.Flags().IntVar(&campaignListOffset, "offset", 0, "Number of campaigns to skip")

	campaignCreateCmd.Flags().StringVar(&campaignCreateTitle, "title", "", "Campaign title (required)")
	campaignCreateCmd.Flags().StringVar(&campaignCreateDescription, "description", "", "Campaign description")
	campaignCreateCmd.Flags().StringVar(&campaignCreateRecipient, "recipient", "", "Recipient address (required)")
	campaignCreateCmd.Flags().Uint64Var(&campaignCreateGoal, "goal", 0, "Target amount in the smallest currency unit (required)")
	campaignCreateCmd.Flags().DurationVar(&campaignCreateDuration, "duration", 0, "Time until the deadline, e.g. 720h (required)")
	campaignCreateCmd.MarkFlagRequired("title")
	campaignCreateCmd.MarkFlagRequired("recipient")
	campaignCreateCmd.MarkFlagRequired("goal")
	campaignCreateCmd.MarkFlagRequired("duration")

	campaignCmd.AddCommand(campaignListCmd, campaignShowCmd, campaignCreateCmd, campaignEndCmd)
	rootCmd.AddCommand(campaignCmd)
}

// openLedger opens the ledger from the config file. The serve process holds
// an exclusive lock on the database, so these commands are for offline use.
func openLedger() (*ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	sender := payout.NewHTTPSender(cfg.Payout.Endpoint, cfg.Payout.Token, cfg.Payout.Timeout, nil)

	l, err := ledger.Open(cfg.Storage.Path, ledger.Options{
		Authority:        ledger.Address(cfg.Authority.Address),
		AuthorityKeyHash: cfg.Authority.KeyHash,
		Sender:           sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return l, nil
}

func parseCampaignID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id %q", arg)
	}
	return id, nil
}

func campaignStatus(c *ledger.Campaign, now time.Time) string {
	switch {
	case c.Ended:
		return "settled"
	case now.Before(c.Deadline):
		return "open"
	default:
		return "expired"
	}
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	campaigns, err := l.Campaigns(cmd.Context(), ledger.ListFilter{
		OnlyOpen: campaignListOpen,
		Limit:    campaignListLimit,
		Offset:   campaignListOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if len(campaigns) == 0 {
		fmt.Println("no campaigns")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tGOAL\tRAISED\tDEADLINE\tSTATUS")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n",
			c.ID, c.Title, c.Goal, c.AmountRaised,
			c.Deadline.Format(time.RFC3339), campaignStatus(&c, now),
		)
	}
	return w.Flush()
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	id, err := parseCampaignID(args[0])
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	c, err := l.Campaign(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:           %d\n", c.ID)
	fmt.Printf("Title:        %s\n", c.Title)
	fmt.Printf("Description:  %s\n", c.Description)
	fmt.Printf("Recipient:    %s\n", c.Recipient)
	fmt.Printf("Goal:         %d\n", c.Goal)
	fmt.Printf("Raised:       %d\n", c.AmountRaised)
	fmt.Printf("Created:      %s\n", c.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Deadline:     %s\n", c.Deadline.Format(time.RFC3339))
	fmt.Printf("Status:       %s\n", campaignStatus(c, time.Now()))
	return nil
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	id, err := l.CreateCampaign(cmd.Context(), ledger.CreateParams{
		Title:       campaignCreateTitle,
		Description: campaignCreateDescription,
		Recipient:   ledger.Address(campaignCreateRecipient),
		Goal:        campaignCreateGoal,
		Duration:    campaignCreateDuration,
	})
	if err != nil {
		return err
	}

	fmt.Printf("campaign %d created\n", id)
	return nil
}

func runCampaignEnd(cmd *cobra.Command, args []string) error {
	id, err := parseCampaignID(args[0])
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.EndCampaign(cmd.Context(), id); err != nil {
		return err
	}

	fmt.Printf("campaign %d settled\n", id)
	return nil
}
