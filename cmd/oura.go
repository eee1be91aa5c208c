package cmd

import (
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/oura"
)

var (
	ouraFlags     downloadFlags
	ouraToken     string
	ouraTokenPath string
)

var ouraCmd = &cobra.Command{
	Use:   "oura",
	Short: "Download data from Oura",
}

var ouraDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download daily health data from the Oura API",
	Long: `Download personal info, daily activity, readiness, sleep, heart rate,
stress, workouts, sessions, tags and ring configuration from the Oura API v2.

The personal access token from --token or $OURA_TOKEN is verified and stored
when no token is stored yet or the stored one is a different token. Without
it the stored token is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWindow(ouraFlags, time.Now())
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

		return runJob(ctx, e, ouraJob(e), w)
	},
}

var ouraLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify an Oura access token and store it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		e, err := setupEnv(jsonMode)
		if err != nil {
			return err
		}
		defer e.Close()

		job := ouraJob(e)
		e.presentation.ShowProgress("Verifying Oura access token...")
		session, err := job.provider.Authenticate(ctx, job.creds)
		if err != nil {
			e.presentation.ShowError(err, "Failed to verify Oura token")
			return err
		}
		if err := job.provider.SaveSession(job.tokenPath, session); err != nil {
			e.presentation.ShowError(err, "Failed to save token to %s", job.tokenPath)
			return err
		}

		e.presentation.ShowStatus("Token verified and saved to %s", job.tokenPath)
		return nil
	},
}

// ouraJob builds the Oura provider and credentials from config
func ouraJob(e *runEnv) vendorJob[*oura.Session] {
	app := oura.OAuthApp{
		ClientID:     viper.GetString("oura.client_id"),
		ClientSecret: viper.GetString("oura.client_secret"),
	}
	provider := oura.NewProvider(
		oura.WithOAuthApp(app, ""),
		oura.WithLogger(e.ol.Component("oura")),
	)

	return vendorJob[*oura.Session]{
		vendor:     oura.Vendor,
		provider:   provider,
		metrics:    oura.Metrics(),
		highlights: oura.Highlights,
		tokenPath:  getConfigValue(ouraTokenPath, "oura.token_path"),
		creds:      dump.Credentials{Token: getConfigValue(ouraToken, "oura.token")},
	}
}

func init() {
	ouraCmd.PersistentFlags().StringVar(&ouraToken, "token", "", "Oura personal access token (default: $OURA_TOKEN)")
	ouraCmd.PersistentFlags().StringVar(&ouraTokenPath, "token-path", "", "Path to token file (default: ~/.wearabledump/oura_token.json)")

	ouraFlags.register(ouraDownloadCmd)

	ouraCmd.AddCommand(ouraDownloadCmd)
	ouraCmd.AddCommand(ouraLoginCmd)
}
