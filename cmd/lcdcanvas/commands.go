package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/lcdcanvas/internal/api"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/logging"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "lcdcanvas",
		Short:         "Drive small USB LCD status panels",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newTokenCmd(&configPath),
		newScreensCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is not set, the API is unauthenticated")
			}
			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "lcdcanvas-cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 for no expiry")
	return cmd
}

// newScreensCmd lists the enabled panel drivers. With --handshake each
// attached panel is opened and asked for its id, which also blanks it.
func newScreensCmd(configPath *string) *cobra.Command {
	var handshake bool
	cmd := &cobra.Command{
		Use:   "screens",
		Short: "List configured panels and whether they are attached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging, version)
			defer log.Close()
			return listScreens(cmd.OutOrStdout(), buildScreens(cfg.Screens, log), handshake)
		},
	}
	cmd.Flags().BoolVar(&handshake, "handshake", false, "open attached panels and read their id")
	return cmd
}

func listScreens(out io.Writer, devices []screen.Device, handshake bool) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "no physical screens enabled")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tATTACHED\tDRIVER\tHANDSHAKE")
	for _, d := range devices {
		desc := d.Descriptor()
		attached := d.Probe()
		hs := "-"
		if handshake && attached {
			hs = handshakeResult(d)
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%t\t%s\t%s\n", desc.Identity, desc.Width, desc.Height, attached, d.String(), hs)
	}
	return tw.Flush()
}

func handshakeResult(d screen.Device) string {
	d.Open()
	defer d.Close()
	id, err := d.Handshake()
	if err != nil {
		return "error: " + err.Error()
	}
	return strings.ToUpper(fmt.Sprintf("%x", id))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lcdcanvas %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
