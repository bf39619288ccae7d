package main

import (
	"fmt"
	"os"
	"strconv"

	"commandForge/internal/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newConnectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage saved connections",
	}
	cmd.AddCommand(newConnectionsListCmd())
	cmd.AddCommand(newConnectionsAddCmd())
	cmd.AddCommand(newConnectionsEditCmd())
	cmd.AddCommand(newConnectionsRemoveCmd())
	cmd.AddCommand(newConnectionsMoveCmd())
	cmd.AddCommand(newConnectionsCopyCmd())
	return cmd
}

func newConnectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			profiles := a.store.Profiles()
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved connections.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), connectionsTable(profiles))
			return nil
		},
	}
}

func connectionsTable(profiles []models.ConnectionProfile) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "NAME", "USER", "ADDRESS", "AUTH").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return cellStyle
		})
	for i, p := range profiles {
		auth := "password"
		if p.KeyPath != "" {
			auth = "key"
		} else if p.Password == "" {
			auth = "prompt"
		}
		t.Row(strconv.Itoa(i+1), p.Name, p.User, p.Address(), auth)
	}
	return t.Render()
}

func newConnectionsAddCmd() *cobra.Command {
	var profile models.ConnectionProfile
	var askPassword bool

	cmd := &cobra.Command{
		Use:   "add [user@host[:port]]",
		Short: "Save a connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				target, err := models.ParseTarget(args[0])
				if err != nil {
					return err
				}
				profile.User, profile.Host, profile.Port = target.User, target.Host, target.Port
			}
			if err := profile.WithDefaults().Validate(); err != nil {
				return err
			}
			if askPassword {
				password, err := readPassword(fmt.Sprintf("Password for %s: ", profile.Title()))
				if err != nil {
					return err
				}
				profile.Password = password
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.store.Add(profile)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already saved.\n", profile.Title())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s as #%d.\n", profile.Title(), a.store.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&profile.Name, "name", "", "display name")
	cmd.Flags().StringVar(&profile.Host, "host", "", "host name or address")
	cmd.Flags().IntVar(&profile.Port, "port", models.DefaultPort, "SSH port")
	cmd.Flags().StringVar(&profile.User, "user", "", "login user")
	cmd.Flags().StringVar(&profile.KeyPath, "key", "", "private key file")
	cmd.Flags().BoolVarP(&askPassword, "password", "p", false, "prompt for a password to store")
	return cmd
}

func newConnectionsEditCmd() *cobra.Command {
	var edit models.ConnectionProfile
	var askPassword bool

	cmd := &cobra.Command{
		Use:   "edit <name|number>",
		Short: "Change fields of a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			profile, index, err := a.store.Find(args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				profile.Name = edit.Name
			}
			if flags.Changed("host") {
				profile.Host = edit.Host
			}
			if flags.Changed("port") {
				profile.Port = edit.Port
			}
			if flags.Changed("user") {
				profile.User = edit.User
			}
			if flags.Changed("key") {
				profile.KeyPath = edit.KeyPath
			}
			if askPassword {
				if profile.Password, err = readPassword(fmt.Sprintf("Password for %s: ", profile.Title())); err != nil {
					return err
				}
			}

			if err := a.store.Update(index, profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d %s.\n", index+1, profile.Title())
			return nil
		},
	}

	cmd.Flags().StringVar(&edit.Name, "name", "", "display name")
	cmd.Flags().StringVar(&edit.Host, "host", "", "host name or address")
	cmd.Flags().IntVar(&edit.Port, "port", models.DefaultPort, "SSH port")
	cmd.Flags().StringVar(&edit.User, "user", "", "login user")
	cmd.Flags().StringVar(&edit.KeyPath, "key", "", "private key file")
	cmd.Flags().BoolVarP(&askPassword, "password", "p", false, "prompt for a new password")
	return cmd
}

func newConnectionsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name|number>",
		Aliases: []string{"remove"},
		Short:   "Delete a saved connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			profile, index, err := a.store.Find(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", profile.Title())
			return nil
		},
	}
}

func newConnectionsMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mv <name|number> <up|down>",
		Aliases:   []string{"move"},
		Short:     "Move a saved connection up or down the list",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var delta int
			switch args[1] {
			case "up":
				delta = -1
			case "down":
				delta = 1
			default:
				return fmt.Errorf("direction must be up or down, got %q", args[1])
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			profile, index, err := a.store.Find(args[0])
			if err != nil {
				return err
			}
			to, err := a.store.Move(index, delta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now #%d.\n", profile.Title(), to+1)
			return nil
		},
	}
}

func newConnectionsCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cp <name|number>",
		Aliases: []string{"copy"},
		Short:   "Duplicate a saved connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			_, index, err := a.store.Find(args[0])
			if err != nil {
				return err
			}
			copied, err := a.store.Duplicate(index)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s as #%d.\n", a.store.Profiles()[copied].Title(), copied+1)
			return nil
		},
	}
}

// readPassword prompts on stderr so stdout stays clean for scripts.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for a password: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
