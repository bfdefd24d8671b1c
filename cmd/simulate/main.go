package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/roadwatch/internal/simulate"
	"github.com/okian/roadwatch/pkg/logger"
)

var (
	flagURL      string
	flagScenario string
	flagTimeout  time.Duration
	flagVerbose  bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roadwatch-sim",
		Short: "Drive a roadwatch service with simulated drivers and cyclists",
		Long: `roadwatch-sim connects one websocket per scripted actor, moves the actors
along straight lines and checks that the expected proximity alerts arrive.

Without --scenario a built-in driver/cyclist encounter on Bloor St W is used.`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario against a service",
		RunE:  run,
	}
	runCmd.Flags().StringVar(&flagURL, "url", "ws://localhost:9080/ws", "Websocket endpoint of the service")
	runCmd.Flags().StringVar(&flagScenario, "scenario", "", "YAML scenario file (default: built-in)")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "Abort the run after this long")
	runCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	scenarioCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := simulate.LoadScenario(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d actors, %d steps, %d expectations\n",
				sc.Name, len(sc.Actors), sc.Steps, len(sc.Expect))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, scenarioCmd)
	return rootCmd
}

func run(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if flagVerbose {
		_ = logger.SetLevelString("debug")
	}

	sc := simulate.BuiltIn()
	if flagScenario != "" {
		loaded, err := simulate.LoadScenario(flagScenario)
		if err != nil {
			return err
		}
		sc = loaded
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	res, err := simulate.Run(ctx, simulate.Config{
		URL:      flagURL,
		Scenario: sc,
		Logger:   logger.Named("simulate"),
	})
	if res != nil {
		fmt.Fprintln(cmd.OutOrStdout(), simulate.Render(res))
	}
	return err
}
