package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ondeck-protocol/ondeck/ledger/sandbox"
)

// envPrefix is the prefix for configuration keys in the environment, e.g.
// --chain-db binds to ONDECK_CHAIN_DB.
const envPrefix = "ONDECK"

type rootConf struct {
	verbose bool
	cfgFile string
	dbFile  string
}

func newRootCmd() *cobra.Command {
	conf := &rootConf{}
	rootCmd := &cobra.Command{
		Use:   "ondeck",
		Short: "Bootstrap pipeline for the card protocol contract",
		Long: `ondeck builds the bootstrap contract, runs the trusted setup ceremony for
the card protocol parameters, serializes them canonically, deploys the
contract and binds the parameters to the deployed account exactly once.

Flags read their defaults from ONDECK_* environment variables and an
optional config file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeConfig(cmd, conf)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&conf.verbose, "verbose", "v", false,
		"log at debug level")
	rootCmd.PersistentFlags().StringVar(&conf.cfgFile, "config", "",
		"config file to read flag defaults from")
	rootCmd.PersistentFlags().StringVar(&conf.dbFile, "chain-db", "",
		"bolt database file backing the sandbox chain (default in memory)")

	rootCmd.AddCommand(
		newRunCmd(conf),
		newCeremonyCmd(conf),
		newDeployCmd(conf),
		newInspectCmd(conf),
	)
	return rootCmd
}

// initializeConfig layers flag values: explicit flags win, then environment
// variables, then the config file.
func initializeConfig(cmd *cobra.Command, conf *rootConf) error {
	v := viper.New()
	if conf.cfgFile != "" {
		v.SetConfigFile(conf.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %v", conf.cfgFile, err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return bindFlags(cmd, v)
}

// bindFlags applies viper values to any flag not set on the command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, envPrefix+"_"+envVarSuffix); err != nil {
				bindErr = fmt.Errorf("failed to bind env to flag %s: %v", f.Name, err)
				return
			}
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				bindErr = fmt.Errorf("failed to set flag %s from config: %v", f.Name, err)
				return
			}
		}
	})
	return bindErr
}

func (c *rootConf) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func (c *rootConf) chain(log zerolog.Logger) (*sandbox.Chain, error) {
	return sandbox.New(sandbox.Conf{DBFile: c.dbFile, Logger: log})
}
