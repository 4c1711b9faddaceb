package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ellis-anderson/evf/internal/duckdb"
	"github.com/ellis-anderson/evf/internal/filter"
	"github.com/ellis-anderson/evf/internal/vcf"
)

type applyOptions struct {
	vcfPath    string
	snpModel   string
	indelModel string
	out        string
	threshold  float64
	db         string
}

func newApplyCmd() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Mark likely false-positive calls in a VCF",
		Long: `Score every record of a VCF with the SNP or indel model and set its FILTER
column to XGB_SNP or XGB_IND when the call is predicted to be a false
positive, or "." otherwise. The output defaults to <input base>.filter.vcf
in the current directory.`,
		Example: `  evf apply --vcf calls.vcf --snp-model SNP.filter.model --indel-model INDEL.filter.model
  evf apply --vcf calls.vcf.gz --snp-model snp.model --indel-model indel.model -o filtered.vcf.gz --db runs.duckdb`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "vcf", "snp-model", "indel-model"); err != nil {
				return err
			}
			opts.threshold = viper.GetFloat64(keyThreshold)
			if opts.threshold <= 0 || opts.threshold >= 1 {
				return usageErr(fmt.Errorf("threshold must be between 0 and 1, got %g", opts.threshold))
			}
			if opts.out == "" {
				if opts.vcfPath == "-" {
					return usageErr(errors.New("--out is required when reading the VCF from stdin"))
				}
				opts.out = filter.OutputName(opts.vcfPath)
			}
			opts.db = viper.GetString(keyDB)
			return runApply(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.vcfPath, "vcf", "", "Input VCF file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.snpModel, "snp-model", "", "SNP model file")
	cmd.Flags().StringVar(&opts.indelModel, "indel-model", "", "Indel model file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output VCF file (default <input base>.filter.vcf, .gz compresses)")
	cmd.Flags().Float64(keyThreshold, filter.DefaultThreshold, "Probability above which a call is kept")
	cmd.Flags().String(keyDB, "", "DuckDB file to log filter decisions to")

	return cmd
}

func runApply(cmd *cobra.Command, opts applyOptions) error {
	f, err := filter.Load(opts.snpModel, opts.indelModel)
	if err != nil {
		return err
	}
	f.SetLogger(logger)
	f.SetThreshold(opts.threshold)

	parser, err := vcf.NewParser(opts.vcfPath)
	if err != nil {
		return err
	}
	defer parser.Close()
	logger.Debug("opened input",
		zap.String("vcf", opts.vcfPath),
		zap.Strings("samples", parser.SampleNames()),
		zap.Int("header_lines", len(parser.Header())))

	var (
		runID string
		store *duckdb.Store
	)
	if opts.db != "" {
		if store, err = duckdb.Open(opts.db); err != nil {
			return err
		}
		defer store.Close()

		runID = uuid.NewString()
		if err := store.AddRun(duckdb.Run{
			ID:          runID,
			Kind:        duckdb.RunFilter,
			CreatedAt:   time.Now(),
			Description: opts.vcfPath,
		}); err != nil {
			return err
		}
		f.AddSink(store.NewFilterLog(runID, 0))
	}

	w, err := vcf.CreateWriter(opts.out)
	if err != nil {
		return err
	}

	stats, err := f.Apply(parser, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		return err
	}

	if store != nil {
		logger.Info("logged filter decisions", zap.String("db", store.Path()), zap.String("run_id", runID))
	}
	if opts.out != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d of %d records (%d SNPs, %d indels) into %s\n",
			stats.Filtered(), stats.Records, stats.FilteredSNPs, stats.FilteredIndels, opts.out)
	}
	return nil
}
