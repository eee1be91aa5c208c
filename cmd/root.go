package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	jsonMode bool
)

var rootCmd = &cobra.Command{
	Use:   "wearabledump",
	Short: "A tool to dump daily health data from Garmin Connect and Oura",
	Long: `Wearabledump is a CLI tool that downloads per-day health metrics from
Garmin Connect and Oura and saves them as JSON files for analysis and backup.

It shows progress in an interactive terminal interface, or emits structured
JSON logs with --json.`,
	SilenceUsage: true,
}

// getConfigValue returns the flag value if non-empty, otherwise returns the viper config value
func getConfigValue(flagValue, viperKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(viperKey)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Viper defaults
	viper.SetDefault("save_dir", "~/.wearabledump/data")
	viper.SetDefault("garmin.token_path", "~/.wearabledump/garmin_tokens.json")
	viper.SetDefault("oura.token_path", "~/.wearabledump/oura_token.json")
	viper.SetDefault("history_db", "~/.wearabledump/history.db")
	viper.SetDefault("log_file", "")
	viper.SetDefault("s3.prefix", "wearabledump")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wearabledump/wearabledump.yaml)")
	rootCmd.PersistentFlags().String("save_dir", "", "Directory to save downloaded files (default: ~/.wearabledump/data)")
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "Output structured JSON logs instead of interactive mode")
	_ = viper.BindPFlag("save_dir", rootCmd.PersistentFlags().Lookup("save_dir"))

	// Bind environment variables
	viper.BindEnv("save_dir", "WD_SAVE_DIR")
	viper.BindEnv("log_file", "WD_LOG_FILE")
	viper.BindEnv("history_db", "WD_HISTORY_DB")

	viper.BindEnv("garmin.email", "WD_GARMIN_EMAIL", "GARMIN_EMAIL")
	viper.BindEnv("garmin.password", "WD_GARMIN_PASSWORD", "GARMIN_PASSWORD")
	viper.BindEnv("garmin.token_path", "WD_GARMIN_TOKEN_PATH")

	viper.BindEnv("oura.token", "WD_OURA_TOKEN", "OURA_TOKEN", "OURA_ACCESS_TOKEN")
	viper.BindEnv("oura.token_path", "WD_OURA_TOKEN_PATH")
	viper.BindEnv("oura.client_id", "WD_OURA_CLIENT_ID", "OURA_CLIENT_ID")
	viper.BindEnv("oura.client_secret", "WD_OURA_CLIENT_SECRET", "OURA_CLIENT_SECRET")

	viper.BindEnv("s3.endpoint", "WD_S3_ENDPOINT")
	viper.BindEnv("s3.access_key", "WD_S3_ACCESS_KEY")
	viper.BindEnv("s3.secret_key", "WD_S3_SECRET_KEY")
	viper.BindEnv("s3.bucket", "WD_S3_BUCKET")
	viper.BindEnv("s3.region", "WD_S3_REGION")
	viper.BindEnv("s3.prefix", "WD_S3_PREFIX")

	rootCmd.AddCommand(garminCmd)
	rootCmd.AddCommand(ouraCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(historyCmd)
}

func initConfig() {
	// A missing .env is fine; real environment variables win
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in ~/.wearabledump/ directory with name "wearabledump" (without extension).
		viper.AddConfigPath(filepath.Join(home, ".wearabledump"))
		viper.SetConfigName("wearabledump")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in silently (logging is via LOG_LEVEL env var)
	viper.ReadInConfig()
}
