package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"commandForge/internal/config"
	"commandForge/internal/logging"
	"commandForge/internal/manager"
	"commandForge/internal/ui/views"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "forge",
		Short:        "Multi-session SSH command console",
		Long:         "Open several interactive SSH shells side by side, send commands line by line and keep a transcript of each session.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkspace(cmd.Context())
		},
	}
	cmd.AddCommand(newConnectionsCmd())
	cmd.AddCommand(newShellCmd())
	return cmd
}

// app holds what every command needs: settings, the diagnostic log and the
// connection store.
type app struct {
	settings *config.Settings
	logger   zerolog.Logger
	logFile  *os.File
	store    *config.Manager
}

func openApp(logWriters ...io.Writer) (*app, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := logging.Open(settings.AppLogPath(), settings.LogLevel, logWriters...)
	if err != nil {
		return nil, err
	}

	cipher, err := settings.Cipher()
	if err != nil {
		logFile.Close()
		return nil, err
	}
	store := config.NewManager(settings.StorePath())
	store.SetCipher(cipher)
	if err := store.Load(); err != nil {
		logFile.Close()
		return nil, err
	}

	return &app{settings: settings, logger: logger, logFile: logFile, store: store}, nil
}

func (a *app) newRegistry() *manager.Registry {
	return manager.NewRegistry(a.settings.Dialer(a.logger), a.settings.SessionOptions(a.logger), a.logger)
}

func (a *app) Close() {
	a.logFile.Close()
}

func runWorkspace(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := a.newRegistry()
	defer func() {
		if err := registry.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close sessions")
		}
	}()

	workspace := views.NewWorkspace(ctx, registry, a.store, a.logger)
	if changed, err := a.store.Watch(ctx, a.logger); err != nil {
		a.logger.Warn().Err(err).Msg("connection store will not follow external edits")
	} else {
		workspace.WatchStore(changed)
	}

	p := tea.NewProgram(workspace, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	workspace.Attach(p.Send)

	dispatcher := manager.NewDispatcher(registry, a.settings.DispatchInterval, a.logger)
	go dispatcher.Run(ctx)

	a.logger.Info().Str("store", a.store.Path()).Msg("workspace started")
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
