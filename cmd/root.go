package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vuload/internal/banner"
)

// ErrThresholdsFailed makes the process exit with ExitThresholds.
var ErrThresholdsFailed = errors.New("some thresholds have failed")

const ExitThresholds = 99

var (
	cfgFile string
	// configErr is a config file that exists but could not be read. Commands
	// that depend on the config return it.
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "vuload",
	Short: "vuload - staged virtual user load testing for the warehouse API",
	Long: `
vuload drives virtual users through a staged load profile against the
warehouse REST service and checks pass/fail thresholds at the end.

Built-in plans: smoke, load, spike, stress (see "vuload plans").
Run "vuload dummy" for a local target.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, ErrThresholdsFailed) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitThresholds)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vuload.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, off)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("history", "", "history database path, or \"off\" (default ~/.vuload/history.db)")
	viper.BindPFlag("history", rootCmd.PersistentFlags().Lookup("history"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd, dummyCmd, historyCmd, plansCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".vuload")
		}
	}
	viper.SetEnvPrefix("VULOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("config: %w", err)
		}
	}
}
