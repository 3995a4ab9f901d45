package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/enrich-service/internal/template"
)

var (
	queriesInput    string
	queriesTemplate string
	queriesLimit    int
)

// queriesCmd previews the rendered queries without calling any API.
var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Print the search query rendered for each row",
	Example: `  enrich queries -i companies.csv -t "{company} headquarters address"`,
	RunE: runQueries,
}

func init() {
	queriesCmd.Flags().StringVarP(&queriesInput, "input", "i", "-", "input CSV file, - for stdin")
	queriesCmd.Flags().StringVarP(&queriesTemplate, "template", "t", "", "query template with {column} placeholders")
	queriesCmd.Flags().IntVarP(&queriesLimit, "limit", "n", 0, "print at most n queries")
	_ = queriesCmd.MarkFlagRequired("template")
}

func runQueries(cmd *cobra.Command, args []string) error {
	tbl, err := readTable(queriesInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	tmpl, err := template.Parse(queriesTemplate)
	if err != nil {
		return err
	}
	queries, err := template.RenderAll(tmpl, tbl)
	if err != nil {
		return err
	}
	if queriesLimit > 0 && len(queries) > queriesLimit {
		queries = queries[:queriesLimit]
	}
	for _, q := range queries {
		fmt.Fprintln(cmd.OutOrStdout(), q)
	}
	return nil
}
