package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helix-research/pipeline-cli/internal/export"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/internal/pipeline"
)

var (
	scanInput  string
	scanOutput string
	scanFormat string
	scanSchema string
)

var scanCmd = &cobra.Command{
	Use:   "scan [\"Company\" | \"Company=URL\"]...",
	Short: "Scan company pipelines and export the extracted assets",
	Long: `Scans one or more companies: locates each pipeline page, extracts drug
assets with escalating fetch tiers and LLM extraction, reconciles overview and
detail pages, and writes a spreadsheet.

Companies come from arguments ("Acme Bio" or "Acme Bio=https://acme.bio/pipeline")
or from an input file of NAME=URL lines (# comments allowed).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		companies, err := collectCompanies(args, scanInput)
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			return eris.New("no companies given: pass arguments or --input")
		}

		progress := func(ev model.ProgressEvent) {
			line := fmt.Sprintf("[%s] %s: %s", ev.Stage, ev.Company, ev.Message)
			if ev.URL != "" {
				line += " " + ev.URL
			}
			if ev.AssetCount > 0 {
				line += fmt.Sprintf(" (%d assets)", ev.AssetCount)
			}
			if ev.Err != "" {
				line += " error: " + ev.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}

		env, err := initScanEnv("scan", pipeline.WithProgress(progress))
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Pipeline.RunBatch(cmd.Context(), companies)

		var assets []model.ExtractedAsset
		failed := 0
		for _, r := range results {
			if r.Err != "" {
				failed++
				zap.L().Warn("scan: company failed",
					zap.String("company", r.Company),
					zap.String("error", r.Err),
				)
				continue
			}
			assets = append(assets, r.Assets...)
		}

		if len(assets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No assets extracted")
			return nil
		}

		schema := export.DefaultSchema()
		if scanSchema != "" {
			schema, err = export.LoadSchema(scanSchema)
			if err != nil {
				return err
			}
		}

		switch scanFormat {
		case "xlsx":
			err = export.ExportXLSX(assets, schema, scanOutput)
		case "csv":
			err = export.ExportCSV(assets, schema, scanOutput)
		default:
			return eris.Errorf("unknown format %q (want xlsx or csv)", scanFormat)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d assets from %d/%d companies to %s\n",
			len(assets), len(results)-failed, len(results), scanOutput)
		return nil
	},
}

// collectCompanies merges positional arguments and the input file.
func collectCompanies(args []string, inputPath string) ([]model.Company, error) {
	var companies []model.Company
	for _, arg := range args {
		companies = append(companies, parseCompanyArg(arg))
	}

	if inputPath != "" {
		fromFile, err := readCompanyFile(inputPath)
		if err != nil {
			return nil, err
		}
		companies = append(companies, fromFile...)
	}
	return companies, nil
}

func parseCompanyArg(arg string) model.Company {
	if name, url, ok := strings.Cut(arg, "="); ok {
		return model.Company{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
	}
	return model.Company{Name: strings.TrimSpace(arg)}
}

// readCompanyFile parses NAME=URL lines; blank lines and # comments are
// skipped, and a bare NAME line means "discover the URL".
func readCompanyFile(path string) ([]model.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "scan: open input file")
	}
	defer func() { _ = f.Close() }()

	var companies []model.Company
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		companies = append(companies, parseCompanyArg(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "scan: read input file")
	}
	return companies, nil
}

func init() {
	scanCmd.Flags().StringVar(&scanInput, "input", "", "file of NAME=URL lines")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "pipeline_output.xlsx", "output file path")
	scanCmd.Flags().StringVar(&scanFormat, "format", "xlsx", "output format: xlsx or csv")
	scanCmd.Flags().StringVar(&scanSchema, "schema", "", "JSON schema file defining output columns")
	rootCmd.AddCommand(scanCmd)
}
