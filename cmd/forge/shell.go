package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"commandForge/internal/config"
	"commandForge/internal/logging"
	"commandForge/internal/manager"
	"commandForge/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newShellCmd() *cobra.Command {
	var verbose bool
	var linger time.Duration

	cmd := &cobra.Command{
		Use:   "shell <name|number|user@host[:port]>",
		Short: "Run a single session on stdin and stdout",
		Long: "Connect to a saved or ad-hoc target and send each line read from stdin as a command. " +
			"Output is printed with timestamps. Ctrl-C interrupts the remote command; end of input closes the session.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []io.Writer
			if verbose {
				extra = append(extra, logging.ConsoleWriter(cmd.ErrOrStderr()))
			}
			a, err := openApp(extra...)
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := resolveProfile(a.store, args[0])
			if err != nil {
				return err
			}
			if profile.Password == "" && profile.KeyPath == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				password, err := readPassword(fmt.Sprintf("Password for %s: ", profile.Title()))
				if err != nil {
					return err
				}
				profile.Password = password
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			return runShell(ctx, a, profile, cmd.InOrStdin(), cmd.OutOrStdout(), linger)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "mirror the diagnostic log to stderr")
	cmd.Flags().DurationVar(&linger, "linger", 500*time.Millisecond, "how long to wait for output after end of input")
	return cmd
}

// resolveProfile prefers saved connections and falls back to parsing ref as
// a user@host target.
func resolveProfile(store *config.Manager, ref string) (models.ConnectionProfile, error) {
	profile, _, err := store.Find(ref)
	if err == nil {
		return profile, nil
	}
	if strings.Contains(ref, "@") {
		return models.ParseTarget(ref)
	}
	return models.ConnectionProfile{}, err
}

func runShell(ctx context.Context, a *app, profile models.ConnectionProfile, in io.Reader, out io.Writer, linger time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := a.newRegistry()
	defer func() {
		if err := registry.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close session")
		}
	}()

	handle, err := registry.Create(ctx, profile, manager.NewWriterSink(out))
	if err != nil {
		return err
	}
	go manager.NewDispatcher(registry, a.settings.DispatchInterval, a.logger).Run(ctx)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	readDone := make(chan error, 1)
	go func() { readDone <- readCommands(ctx, in, lines) }()

	for {
		select {
		case line := <-lines:
			if err := registry.SendCommand(handle, line); err != nil {
				return err
			}

		case <-interrupts:
			if err := registry.Interrupt(handle); err != nil {
				return err
			}

		case err := <-readDone:
			select {
			case <-time.After(linger):
			case <-ctx.Done():
			}
			registry.DrainDue()
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// readCommands feeds lines from in until end of input. Cancelling ctx stops it
// without an error.
func readCommands(ctx context.Context, in io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	return nil
}
