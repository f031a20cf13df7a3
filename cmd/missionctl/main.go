package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/pkg/client"
)

var (
	baseURL    string
	apiKey     string
	timeout    time.Duration
	difficulty string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "missionctl",
		Short:        "Inspect and drive daily missions",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&baseURL, "url", "u", envOr("MISSIONS_URL", "http://localhost:8080"), "daily-missions API base URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", os.Getenv("MISSIONS_API_KEY"), "API key")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	definitionsCmd := &cobra.Command{
		Use:   "definitions",
		Short: "List mission definitions",
		Args:  cobra.NoArgs,
		RunE:  runDefinitions,
	}
	definitionsCmd.Flags().StringVarP(&difficulty, "difficulty", "d", "", "only show one difficulty (easy, medium, hard)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "show <player>",
			Short: "Show a player's daily missions",
			Args:  cobra.ExactArgs(1),
			RunE:  runShow,
		},
		&cobra.Command{
			Use:   "progress <player> <type> [amount]",
			Short: "Report progress for a mission type",
			Args:  cobra.RangeArgs(2, 3),
			RunE:  runProgress,
		},
		&cobra.Command{
			Use:   "claim <player> <slot>",
			Short: "Claim the reward of a completed mission",
			Args:  cobra.ExactArgs(2),
			RunE:  runClaim,
		},
		&cobra.Command{
			Use:   "level <player> <level>",
			Short: "Set a player's level",
			Args:  cobra.ExactArgs(2),
			RunE:  runLevel,
		},
		&cobra.Command{
			Use:   "reset <player>",
			Short: "Assign new missions now (admin)",
			Args:  cobra.ExactArgs(1),
			RunE:  runReset,
		},
		&cobra.Command{
			Use:   "clear <player>",
			Short: "Delete a player's stored missions (admin)",
			Args:  cobra.ExactArgs(1),
			RunE:  runClear,
		},
		&cobra.Command{
			Use:   "watch <player>",
			Short: "Stream a player's mission events",
			Args:  cobra.ExactArgs(1),
			RunE:  runWatch,
		},
		definitionsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.NewClient(baseURL, apiKey, client.WithTimeout(timeout))
}

func runShow(cmd *cobra.Command, args []string) error {
	view, err := newClient().GetMissions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printMissions(os.Stdout, view)
}

func runProgress(cmd *cobra.Command, args []string) error {
	amount := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[2])
		}
		amount = n
	}

	view, err := newClient().Progress(cmd.Context(), args[0], models.MissionType(args[1]), amount)
	if err != nil {
		return err
	}

	if len(view.Changed) == 0 {
		color.Yellow("No active mission of type %s advanced", args[1])
	} else {
		color.Green("Advanced slots %v", view.Changed)
	}
	return printMissions(os.Stdout, &view.MissionsView)
}

func runClaim(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid slot %q", args[1])
	}

	view, err := newClient().Claim(cmd.Context(), args[0], slot)
	if err != nil {
		return err
	}

	color.New(color.FgGreen, color.Bold).Printf("Claimed %d %s\n", view.Reward.Amount, view.Reward.Type)
	return printMissions(os.Stdout, &view.Missions)
}

func runLevel(cmd *cobra.Command, args []string) error {
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid level %q", args[1])
	}

	if err := newClient().SetLevel(cmd.Context(), args[0], level); err != nil {
		return err
	}
	color.Green("Player %s is now level %d", args[0], level)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	view, err := newClient().ResetMissions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printMissions(os.Stdout, view)
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := newClient().ClearMissions(cmd.Context(), args[0]); err != nil {
		return err
	}
	color.Green("Missions of %s cleared", args[0])
	return nil
}

func runDefinitions(cmd *cobra.Command, args []string) error {
	defs, err := newClient().ListDefinitions(cmd.Context(), difficulty)
	if err != nil {
		return err
	}
	return printDefinitions(os.Stdout, defs)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := newClient().Subscribe(ctx, args[0])
	if err != nil {
		return err
	}
	defer stream.Close()

	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	color.Cyan("Watching missions of %s (Ctrl+C to stop)", args[0])
	for {
		msg, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := printStreamMessage(os.Stdout, msg); err != nil {
			return err
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
