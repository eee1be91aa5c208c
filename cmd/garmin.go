package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/garmin"
)

var (
	garminFlags     downloadFlags
	garminEmail     string
	garminTokenPath string
)

var garminCmd = &cobra.Command{
	Use:   "garmin",
	Short: "Download data from Garmin Connect",
}

var garminDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download daily health data from Garmin Connect",
	Long: `Download daily summary, heart rate, sleep, stress, HRV, body battery,
activities and devices from Garmin Connect.

A stored token is used when present, otherwise the command logs in with the
configured email and password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWindow(garminFlags, time.Now())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		e, err := setupEnv(jsonMode)
		if err != nil {
			return err
		}
		defer e.Close()

		return runJob(ctx, e, garminJob(e), w)
	},
}

var garminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Garmin Connect and store tokens",
	Long: `Log in with email, password and an MFA code if the account requires one,
then store the OAuth tokens so later downloads need no password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		e, err := setupEnv(jsonMode)
		if err != nil {
			return err
		}
		defer e.Close()

		job := garminJob(e)
		if job.creds.Password == "" && !jsonMode {
			password, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Garmin password")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			job.creds.Password = strings.TrimSpace(password)
		}

		e.presentation.ShowProgress("Logging in to Garmin Connect as %s...", job.creds.Username)
		session, err := job.provider.Authenticate(ctx, job.creds)
		if err != nil {
			e.presentation.ShowError(err, "Failed to log in to Garmin Connect")
			return err
		}
		if err := job.provider.SaveSession(job.tokenPath, session); err != nil {
			e.presentation.ShowError(err, "Failed to save tokens to %s", job.tokenPath)
			return err
		}

		e.presentation.ShowStatus("Logged in as %s, tokens saved to %s", session.DisplayName, job.tokenPath)
		return nil
	},
}

// garminJob builds the Garmin provider and credentials from config
func garminJob(e *runEnv) vendorJob[*garmin.Session] {
	logger := e.ol.Component("garmin")
	creds := dump.Credentials{
		Username: getConfigValue(garminEmail, "garmin.email"),
		Password: viper.GetString("garmin.password"),
	}
	if !e.ol.JSONMode() {
		creds.MFA = promptMFA
	}

	return vendorJob[*garmin.Session]{
		vendor:     garmin.Vendor,
		provider:   garmin.NewProvider(garmin.WithLogger(logger)),
		metrics:    garmin.Metrics(),
		highlights: garmin.Highlights,
		tokenPath:  getConfigValue(garminTokenPath, "garmin.token_path"),
		creds:      creds,
	}
}

func promptMFA(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	code, err := pterm.DefaultInteractiveTextInput.Show("Garmin MFA code")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func init() {
	garminCmd.PersistentFlags().StringVar(&garminEmail, "email", "", "Garmin Connect email (default: $GARMIN_EMAIL)")
	garminCmd.PersistentFlags().StringVar(&garminTokenPath, "token-path", "", "Path to token file (default: ~/.wearabledump/garmin_tokens.json)")

	garminFlags.register(garminDownloadCmd)

	garminCmd.AddCommand(garminDownloadCmd)
	garminCmd.AddCommand(garminLoginCmd)
}
