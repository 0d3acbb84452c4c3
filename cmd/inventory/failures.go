package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	failuresLimit     int
	failuresOlderThan time.Duration
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and resolve journalled serialization failures",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journalled failures, most recent first",
	RunE:  runFailuresList,
}

var failuresResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Remove a handled failure from the journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runFailuresResolve,
}

var failuresPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove failures older than --older-than",
	RunE:  runFailuresPurge,
}

func init() {
	failuresListCmd.Flags().IntVar(&failuresLimit, "limit", 50, "maximum entries to show")
	failuresPurgeCmd.Flags().DurationVar(&failuresOlderThan, "older-than", 30*24*time.Hour, "age of entries to purge")

	failuresCmd.AddCommand(failuresListCmd)
	failuresCmd.AddCommand(failuresResolveCmd)
	failuresCmd.AddCommand(failuresPurgeCmd)
}

func runFailuresList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	q, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()

	entries, err := q.List(ctx, failuresLimit)
	if err != nil {
		return err
	}
	stats, err := q.GetStats(ctx, cfg.Serializer.MaxAttempts)
	if err != nil {
		return err
	}

	fmt.Printf("Journalled failures: %d (%d failed %d+ times)\n", stats.TotalEntries, stats.ExhaustedRetries, cfg.Serializer.MaxAttempts)
	for _, e := range entries {
		fmt.Printf("  #%d %s %s/%s [%s] retries=%d updated=%s\n      %s\n",
			e.ID, e.Operation, e.ResourceType, e.ResourceKey, e.ErrorCode, e.RetryCount,
			e.UpdatedAt.Format(time.RFC3339), e.ErrorMessage)
	}
	return nil
}

func runFailuresResolve(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid failure id %q: %w", args[0], err)
	}

	ctx := context.Background()
	q, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()

	removed, err := q.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no journalled failure with id %d", id)
	}
	fmt.Printf("Resolved failure #%d\n", id)
	return nil
}

func runFailuresPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	q, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()

	n, err := q.PurgeOld(ctx, failuresOlderThan)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d failure(s) older than %s\n", n, failuresOlderThan)
	return nil
}
