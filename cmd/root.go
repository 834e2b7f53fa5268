package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eufy-bridge/internal/config"
	"eufy-bridge/internal/logging"
)

var cfgFile string
var jsonOutput bool
var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eufy-bridge",
	Short: "Record Eufy camera livestreams when motion is detected",
	Long: `Connects to an eufy-security-ws hub, wakes the camera on motion,
and saves the livestream to disk through ffmpeg.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.eufy-bridge.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARNING, ERROR)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	config.InitConfig(cfgFile)
	if err := logging.Init(viper.GetString("log_level")); err != nil {
		fmt.Printf("Error: invalid log level: %v\n", err)
		os.Exit(1)
	}
}

// mustSettings loads the typed configuration or exits.
func mustSettings() *config.Settings {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return s
}
