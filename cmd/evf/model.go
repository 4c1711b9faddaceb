package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ellis-anderson/evf/internal/gbtree"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect trained models",
	}

	cmd.AddCommand(newModelDumpCmd())
	cmd.AddCommand(newModelInfoCmd())

	return cmd
}

func newModelDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dump <model>",
		Short:   "Print every tree of a model as JSON",
		Example: `  evf model dump SNP.filter.model | jq '.trees[0]'`,
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := gbtree.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.DumpJSON())
			return nil
		},
	}
}

// modelInfo is the YAML summary printed by `model info`.
type modelInfo struct {
	RunID     string       `yaml:"run_id"`
	Type      string       `yaml:"type"`
	Created   string       `yaml:"created"`
	Trees     int          `yaml:"trees"`
	MaxDepth  int          `yaml:"max_depth"`
	Leaves    int          `yaml:"leaves"`
	Features  []string     `yaml:"features"`
	Rows      int          `yaml:"rows"`
	Positives int          `yaml:"positives"`
	Params    string       `yaml:"params"`
	Sources   []sourceInfo `yaml:"sources"`
}

type sourceInfo struct {
	Path  string `yaml:"path"`
	Label int    `yaml:"label"`
	Size  int64  `yaml:"size"`
}

func newModelInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <model>",
		Short: "Show how a model was trained",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := gbtree.LoadFile(args[0])
			if err != nil {
				return err
			}

			info := modelInfo{
				RunID:     m.Meta.RunID,
				Type:      m.Meta.Name,
				Created:   m.Meta.CreatedAt.Format(time.RFC3339),
				Trees:     len(m.Trees),
				Features:  m.FeatureNames,
				Rows:      m.Meta.Rows,
				Positives: m.Meta.Positives,
				Params:    m.Params.String(),
			}
			for i := range m.Trees {
				info.MaxDepth = max(info.MaxDepth, m.Trees[i].Depth())
				info.Leaves += m.Trees[i].NumLeaves()
			}
			for _, s := range m.Meta.Sources {
				info.Sources = append(info.Sources, sourceInfo{Path: s.Path, Label: s.Label, Size: s.Size})
			}

			out, err := yaml.Marshal(info)
			if err != nil {
				return fmt.Errorf("marshaling model info: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
