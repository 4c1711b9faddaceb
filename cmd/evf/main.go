// Package main provides the evf command-line tool.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Configuration keys shared by flags, EVF_ environment variables and ~/.evf.yaml.
const (
	keyNJobs     = "njobs"
	keyThreshold = "threshold"
	keyDB        = "db"
	keyVerbose   = "verbose"
)

const configName = ".evf"

// logger is built once the command line is parsed.
var logger = zap.NewNop()

// usageError marks errors caused by bad command-line input.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErr(err error) error {
	return &usageError{err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	viper.Reset()
	logger = zap.NewNop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	logger.Sync() //nolint:errcheck
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "evf",
		Short: "Filter variant calls with gradient-boosted trees",
		Long: `evf trains gradient-boosted tree classifiers on true-positive and
false-positive call sets, and uses them to mark likely false-positive SNPs
and indels in the FILTER column of a VCF.`,
		Example: `  # Train a SNP model from vcfeval output
  evf train --true-pos tp.vcf.gz --false-pos fp.vcf.gz --type SNP

  # Filter a call set with SNP and indel models
  evf apply --vcf calls.vcf --snp-model SNP.filter.model --indel-model INDEL.filter.model`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cfgFile); err != nil {
				return err
			}
			if err := bindFlags(cmd); err != nil {
				return err
			}
			l, err := newLogger(viper.GetBool(keyVerbose))
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			logger = l
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.evf.yaml)")
	cmd.PersistentFlags().BoolP(keyVerbose, "v", false, "Enable debug logging")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErr(err)
	})

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// initConfig reads the config file and EVF_ environment variables.
func initConfig(cfgFile string) error {
	viper.SetEnvPrefix("EVF")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", viper.ConfigFileUsed(), err)
	}
	return nil
}

// bindFlags binds the command's configurable flags to their viper keys.
func bindFlags(cmd *cobra.Command) error {
	for _, key := range []string{keyNJobs, keyThreshold, keyDB, keyVerbose} {
		if f := cmd.Flags().Lookup(key); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", key, err)
			}
		}
	}
	return nil
}

// requireFlags reports missing required flags as a usage error.
func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, name := range names {
		if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return usageErr(fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", ")))
	}
	return nil
}

// defaultConfigFile returns ~/.evf.yaml.
func defaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, configName+".yaml"), nil
}

// newLogger builds a console logger on stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.Development = false
	cfg.DisableCaller = !verbose
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return cfg.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "evf version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// noArgs is cobra.NoArgs reported as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageErr(err)
	}
	return nil
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageErr(err)
		}
		return nil
	}
}
