package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/auth"
	"github.com/cpuguy83/bookwatch/internal/export"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		all     bool
		icsPath string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List upcoming appointments, marking overlaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snap, err := opts.loadStore(cmd.Context())
			if err != nil {
				return err
			}

			appts := snap.Upcoming
			if all {
				appts = snap.Appointments
			}

			if icsPath != "" {
				if icsPath == "-" {
					return export.Encode(cmd.OutOrStdout(), appts, snap.Pairs, time.Now())
				}
				if err := export.WriteICS(icsPath, appts, snap.Pairs); err != nil {
					return err
				}
				slog.Info("wrote ICS", "path", icsPath, "appointments", len(appts))
				return nil
			}

			for _, line := range formatAppointments(appts, snap, time.Now()) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include past appointments")
	cmd.Flags().StringVar(&icsPath, "ics", "", "write an iCalendar file instead (- for stdout)")
	return cmd
}

func newOverlapsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overlaps",
		Short: "Show upcoming appointments that overlap another one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snap, err := opts.loadStore(cmd.Context())
			if err != nil {
				return err
			}

			var flagged []appointment.Appointment
			for _, a := range snap.Upcoming {
				if snap.IsFlagged(a.ID) {
					flagged = append(flagged, a)
				}
			}

			out := cmd.OutOrStdout()
			if len(flagged) == 0 {
				fmt.Fprintln(out, "No overlapping appointments")
				return nil
			}
			for _, line := range formatAppointments(flagged, snap, time.Now()) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newRescheduleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule ID START",
		Short: "Move an appointment, keeping its duration",
		Long: "Move an appointment to a new start time, keeping its duration.\n" +
			"START is RFC 3339 or \"YYYY-MM-DD HH:MM\" in the configured timezone.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			start, err := parseStart(args[1], cfg.Location())
			if err != nil {
				return err
			}

			store, _, err := opts.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Stop()

			return store.Reschedule(cmd.Context(), args[0], start)
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Stop()

			return store.Delete(cmd.Context(), args[0])
		},
	}
}

func newSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask the backend to pull from the linked external calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			if err := client.SyncCalendar(cmd.Context()); err != nil {
				return fmt.Errorf("sync calendar: %w", err)
			}
			slog.Info("calendar sync triggered")
			return nil
		},
	}
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		useToken bool
		forget   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the bookings backend",
		Long: "Sign in with the Azure AD device code flow when auth.msal is configured.\n" +
			"With --token, read a bearer token from stdin and store it in the OS keyring.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			if useToken || forget {
				ring, err := auth.OpenKeyring()
				if err != nil {
					return err
				}
				if forget {
					return ring.Clear()
				}
				return storeToken(cmd, ring)
			}

			if cfg.Auth.MSAL == nil {
				return errors.New("auth.msal is not configured; use --token to store a bearer token")
			}
			dc, err := auth.NewDeviceCodeAuth(cfg.Auth.MSAL.ClientID, cfg.Auth.MSAL.Authority, cfg.Auth.MSAL.Scopes)
			if err != nil {
				return err
			}
			return dc.Login(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&useToken, "token", false, "read a bearer token from stdin into the keyring")
	cmd.Flags().BoolVar(&forget, "clear", false, "remove the token stored in the keyring")
	return cmd
}

func storeToken(cmd *cobra.Command, ring *auth.Keyring) error {
	fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New("empty token")
	}

	if exp, ok := auth.Expiry(token); ok {
		if time.Now().After(exp) {
			return fmt.Errorf("token expired at %s", exp.Format(time.RFC3339))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Token valid until %s\n", exp.Local().Format(time.RFC1123))
	}

	if err := ring.Store(token); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Token stored in keyring")
	return nil
}
