package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ellis-anderson/evf/internal/filter"
)

// configKey is a setting that can be stored in ~/.evf.yaml.
type configKey struct {
	name  string
	def   any
	usage string
	parse func(string) (any, error)
}

var configKeys = []configKey{
	{keyNJobs, 2, "parallel jobs for train", parsePositiveInt},
	{keyThreshold, filter.DefaultThreshold, "probability above which apply keeps a call", parseThreshold},
	{keyDB, "", "DuckDB file that train and apply log to", parseString},
	{keyVerbose, false, "debug logging", parseBool},
}

func lookupConfigKey(name string) (configKey, error) {
	i := slices.IndexFunc(configKeys, func(k configKey) bool { return k.name == name })
	if i < 0 {
		names := make([]string, len(configKeys))
		for j, k := range configKeys {
			names[j] = k.name
		}
		return configKey{}, usageErr(fmt.Errorf("unknown key %q (valid keys: %s)", name, strings.Join(names, ", ")))
	}
	return configKeys[i], nil
}

func parsePositiveInt(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("expected a positive integer, got %q", s)
	}
	return n, nil
}

func parseThreshold(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f >= 1 {
		return nil, fmt.Errorf("expected a number between 0 and 1, got %q", s)
	}
	return f, nil
}

func parseString(s string) (any, error) {
	return s, nil
}

func parseBool(s string) (any, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return nil, fmt.Errorf("expected true or false, got %q", s)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage evf configuration",
		Long: `Show, get, or set configuration values stored in ~/.evf.yaml (or --config).

Keys:
  njobs       parallel jobs for train (default 2)
  threshold   probability above which apply keeps a call (default 0.5)
  db          DuckDB file that train and apply log to (default none)
  verbose     debug logging (default false)

Each key can also be set with an EVF_ environment variable (e.g. EVF_NJOBS=8);
command-line flags take precedence over both.`,
		Example: `  evf config                   # show every key and its value
  evf config set njobs 8       # train with 8 jobs by default
  evf config set db runs.duckdb
  evf config get threshold`,
		Args: noArgs,
		// Flags stay unbound; only file and env values are shown or written.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			return initConfig(cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

// configValue returns the stored value of k, or its default.
func configValue(k configKey) (any, bool) {
	if !viper.IsSet(k.name) {
		return k.def, false
	}
	return viper.Get(k.name), true
}

func runConfigShow(w io.Writer) error {
	file := viper.ConfigFileUsed()
	if file == "" {
		if f, err := defaultConfigFile(); err == nil {
			file = f
		}
	}
	fmt.Fprintf(w, "# %s\n", file)

	var doc yaml.Node
	doc.Kind = yaml.MappingNode
	for _, k := range configKeys {
		v, set := configValue(k)
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return fmt.Errorf("marshaling %s: %w", k.name, err)
		}
		comment := k.usage
		if !set {
			comment += " (default)"
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k.name},
			&val)
		val.LineComment = "# " + comment
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

func runConfigSet(w io.Writer, key, value string) error {
	k, err := lookupConfigKey(key)
	if err != nil {
		return err
	}
	v, err := k.parse(value)
	if err != nil {
		return usageErr(fmt.Errorf("%s: %w", key, err))
	}
	viper.Set(key, v)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		if cfgFile, err = defaultConfigFile(); err != nil {
			return err
		}
	}

	// Write only known keys, whatever else viper picked up.
	stored := make(map[string]any)
	for _, k := range configKeys {
		if viper.IsSet(k.name) {
			stored[k.name] = viper.Get(k.name)
		}
	}
	out, err := yaml.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := writeConfigFile(cfgFile, out); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %v in %s\n", key, v, cfgFile)
	return nil
}

func runConfigGet(w io.Writer, key string) error {
	k, err := lookupConfigKey(key)
	if err != nil {
		return err
	}
	v, set := configValue(k)
	if !set && k.def == "" {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(w, v)
	return nil
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
