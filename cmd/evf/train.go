package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ellis-anderson/evf/internal/duckdb"
	"github.com/ellis-anderson/evf/internal/train"
	"github.com/ellis-anderson/evf/internal/vcf"
)

type trainOptions struct {
	truePos    string
	falsePos   string
	class      vcf.Class
	out        string
	selectType bool
	njobs      int
	db         string
}

func newTrainCmd() *cobra.Command {
	var (
		opts    trainOptions
		varType string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a filter model from true-positive and false-positive calls",
		Long: `Train a gradient-boosted tree model that separates true-positive from
false-positive calls of one variant type. Several call sets can be given as
comma-separated lists; the nth true-positive file is paired with the nth
false-positive file.`,
		Example: `  evf train --true-pos tp.vcf.gz --false-pos fp.vcf.gz --type SNP
  evf train --true-pos a.tp.vcf,b.tp.vcf --false-pos a.fp.vcf,b.fp.vcf --type INDEL -n 8 -o indel.model`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "true-pos", "false-pos", "type"); err != nil {
				return err
			}
			class, err := vcf.ParseClass(varType)
			if err != nil {
				return usageErr(err)
			}
			opts.class = class
			if opts.out == "" {
				opts.out = train.DefaultModelName(class)
			}
			opts.njobs = viper.GetInt(keyNJobs)
			opts.db = viper.GetString(keyDB)
			return runTrain(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.truePos, "true-pos", "", "True-positive VCF file(s), comma-separated")
	cmd.Flags().StringVar(&opts.falsePos, "false-pos", "", "False-positive VCF file(s), comma-separated")
	cmd.Flags().StringVarP(&varType, "type", "t", "", "Variant type to train: SNP or INDEL")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output model file (default <TYPE>.filter.model)")
	cmd.Flags().IntP(keyNJobs, "n", 2, "Number of parallel jobs")
	cmd.Flags().BoolVar(&opts.selectType, "select-type", false, "Train only on records of the given type")
	cmd.Flags().String(keyDB, "", "DuckDB file to log training rows to")

	return cmd
}

func runTrain(ctx context.Context, cmd *cobra.Command, opts trainOptions) error {
	topts := train.Options{
		TruePos:     opts.truePos,
		FalsePos:    opts.falsePos,
		Class:       opts.class,
		Workers:     opts.njobs,
		SelectClass: opts.selectType,
	}

	if opts.db != "" {
		store, err := duckdb.Open(opts.db)
		if err != nil {
			return err
		}
		defer store.Close()

		topts.OnTables = func(runID string, tables []*train.Table) error {
			if err := store.AddRun(duckdb.Run{
				ID:          runID,
				Kind:        duckdb.RunTrain,
				CreatedAt:   time.Now(),
				Description: string(opts.class),
			}); err != nil {
				return err
			}
			if err := store.WriteTables(runID, tables); err != nil {
				return fmt.Errorf("log training rows: %w", err)
			}
			logger.Info("logged training rows", zap.String("db", store.Path()), zap.String("run_id", runID))
			return nil
		}
	}

	t := train.NewTrainer()
	t.SetLogger(logger)
	model, err := t.Train(ctx, topts)
	if err != nil {
		return err
	}

	if err := model.SaveFile(opts.out); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	logger.Info("saved model", zap.String("path", opts.out))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s model (%d trees, %d rows) to %s\n",
		opts.class, len(model.Trees), model.Meta.Rows, opts.out)
	return nil
}
