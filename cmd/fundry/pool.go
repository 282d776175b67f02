package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	poolWithdrawAmount uint64
	poolWithdrawKey    string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Fund pool commands",
}

var poolStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pool balances",
	RunE:  runPoolStats,
}

var poolWithdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw residual funds to the authority address",
	RunE:  runPoolWithdraw,
}

func init() {
	poolWithdrawCmd.Flags().Uint64Var(&poolWithdrawAmount, "amount", 0, "Amount to withdraw (required)")
	poolWithdrawCmd.Flags().StringVar(&poolWithdrawKey, "key", "", "Authority withdrawal key (required)")
	poolWithdrawCmd.MarkFlagRequired("amount")
	poolWithdrawCmd.MarkFlagRequired("key")

	poolCmd.AddCommand(poolStatsCmd, poolWithdrawCmd)
	rootCmd.AddCommand(poolCmd)
}

func runPoolStats(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	stats, err := l.Pool(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get pool stats: %w", err)
	}

	fmt.Printf("Total:      %d\n", stats.Total)
	fmt.Printf("Committed:  %d\n", stats.Committed)
	fmt.Printf("Free:       %d\n", stats.Free)
	return nil
}

func runPoolWithdraw(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.WithdrawResidual(cmd.Context(), poolWithdrawKey, poolWithdrawAmount); err != nil {
		return err
	}

	fmt.Printf("withdrew %d to the authority address\n", poolWithdrawAmount)
	return nil
}
