package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/adapter/sheets"
	"github.com/user/enrich-service/internal/bootstrap"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/template"
	"github.com/user/enrich-service/internal/usecase"
	"github.com/user/enrich-service/pkg/config"
)

var (
	runInput      string
	runOutput     string
	runTemplate   string
	runFieldsFile string
	runFields     []string
	runStatus     bool
	runSheet      string
)

var errRunCanceled = errors.New("run canceled, output holds the rows finished so far")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search and extract fields for every row and write the enriched CSV",
	Long: `Runs the full pipeline over the input table. Each row gets the extracted
fields appended as new columns; a row whose search or extraction failed keeps
its original values with empty extracted cells. Use --status to add the
per-row outcome and error columns. --sheet also overwrites a Google Sheet
with the output; it needs SHEETS_CREDENTIALS_FILE and a sheet shared with
that service account.

Fields come from a YAML file:

  fields:
    - name: email
      description: What is the contact email of the company?
      pattern: '[\w.+-]+@[\w-]+\.[\w.]+'

or from repeated --field name=description flags.`,
	Example: `  enrich run -i companies.csv -t "{company} contact email" --field email -o out.csv`,
	RunE:    runEnrich,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "input CSV file, - for stdin")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "-", "output CSV file, - for stdout")
	runCmd.Flags().StringVarP(&runTemplate, "template", "t", "", "query template with {column} placeholders")
	runCmd.Flags().StringVarP(&runFieldsFile, "fields", "f", "", "YAML file listing the fields to extract")
	runCmd.Flags().StringArrayVar(&runFields, "field", nil, "field to extract as name or name=description (repeatable)")
	runCmd.Flags().BoolVar(&runStatus, "status", false, "append outcome and error columns")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "Google Sheet link to overwrite with the output")
	_ = runCmd.MarkFlagRequired("template")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tbl, err := readTable(runInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	tmpl, err := template.Parse(runTemplate)
	if err != nil {
		return err
	}
	spec, err := loadSpec(runFieldsFile, runFields)
	if err != nil {
		return err
	}
	// Fail before any connection is opened or quota is spent.
	if err := tmpl.Validate(tbl.Columns); err != nil {
		return err
	}
	if err := usecase.ValidateSpec(spec); err != nil {
		return err
	}
	if runSheet != "" {
		if cfg.SheetsCredentialsFile == "" {
			return &config.ConfigError{Key: "SHEETS_CREDENTIALS_FILE", Reason: "required by --sheet"}
		}
		if _, _, err := sheets.ParseURL(runSheet); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Cache: true}, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	out, closeOut, err := openOutput(runOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	res, err := enrichTable(ctx, app.Pipeline, usecase.Request{Table: tbl, Template: tmpl, Spec: spec}, out, runStatus)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Enriched %d rows, %d failed\n", len(res.Rows), res.Failed)
	if res.Canceled {
		return errRunCanceled
	}
	if runSheet != "" {
		if err := writeSheet(ctx, app.Sheets, runSheet, res, runStatus); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", len(res.Rows), runSheet)
	}
	return nil
}

func writeSheet(ctx context.Context, w usecase.SheetWriter, sheetURL string, res *usecase.Result, withStatus bool) error {
	if w == nil {
		return usecase.ErrSheetsUnavailable
	}
	columns, rows := usecase.Records(res.Columns, res.Rows, withStatus)
	if err := w.Write(ctx, sheetURL, columns, rows); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return nil
}

// enrichTable runs the pipeline and writes every output row to w.
func enrichTable(ctx context.Context, p *usecase.Pipeline, req usecase.Request, w io.Writer, withStatus bool) (*usecase.Result, error) {
	done := 0
	req.OnRow = func(row entity.OutputRow) {
		done++
		logger.Debug("Row finished",
			zap.Int("row", row.Index),
			zap.String("outcome", string(row.Outcome)),
			zap.Int("done", done),
			zap.Int("total", req.Table.Len()),
		)
	}
	res, err := p.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := usecase.WriteRows(w, res.Columns, res.Rows, withStatus); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}
