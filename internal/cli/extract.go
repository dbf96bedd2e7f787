package cli

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/david/licitacoes/internal/browse"
	"github.com/david/licitacoes/internal/db"
	"github.com/david/licitacoes/internal/ingest"
	"github.com/david/licitacoes/internal/logging"
	"github.com/david/licitacoes/internal/models"
)

const previewRows = 5

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Download open bidding opportunities and write the raw and clean snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		fullLoad, _ := cmd.Flags().GetBool("full-load")
		endpointFile, _ := cmd.Flags().GetString("endpoint-config")
		dataFinal, _ := cmd.Flags().GetString("data-final")
		dataInicial, _ := cmd.Flags().GetString("data-inicial")
		modalidade, _ := cmd.Flags().GetString("modalidade")
		uf, _ := cmd.Flags().GetString("uf")

		cfg, err := ingest.LoadEndpointConfig(endpointFile)
		if err != nil {
			return err
		}
		applyFetchOverrides(viper.GetViper(), &cfg.Fetch)

		client := ingest.NewPNCPClient(cfg)
		client.Progress = func(page, totalPages, items int) {
			logging.Log.Infof("Fetched page %d/%d with %d results.", page, totalPages, items)
		}

		pipeline := ingest.NewPipeline(client, viper.GetString("snapshot.dir"))
		res, err := pipeline.Extract(cmd.Context(), ingest.ExtractOptions{
			FullLoad: fullLoad,
			Params: ingest.Params{
				DataFinal:        dataFinal,
				DataInicial:      dataInicial,
				CodigoModalidade: modalidade,
				UF:               uf,
			},
		})
		if err != nil {
			return err
		}

		logging.Log.Infof("Total records: %d", res.Clean.Len())
		renderPreview(res.Clean, browse.DefaultConfig())
		return nil
	},
}

// applyFetchOverrides copies pncp.* settings given by flag, env or config
// file over the endpoint YAML. Unset keys leave the YAML values alone.
func applyFetchOverrides(v *viper.Viper, fetch *ingest.FetchConfig) {
	if v.IsSet("pncp.max_retries") {
		fetch.MaxRetries = v.GetInt("pncp.max_retries")
	}
	if v.IsSet("pncp.timeout_seconds") {
		if timeout := v.GetInt("pncp.timeout_seconds"); timeout > 0 {
			fetch.TimeoutSeconds = timeout
		}
	}
}

// renderPreview prints the first rows of ds over the default columns.
func renderPreview(ds *models.Dataset, cfg browse.Config) {
	cols := browse.ResolveDefaultColumns(ds, cfg)
	if len(cols) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)
	t.SetColumnConfigs([]table.ColumnConfig{{Name: models.ColObject, WidthMax: 60}})

	for _, r := range ds.Head(previewRows) {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[i] = db.FormatCell(r[c])
		}
		t.AppendRow(row)
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().Bool("full-load", true, "Query the API. With --full-load=false the raw snapshot is normalized again")
	extractCmd.Flags().String("endpoint-config", "", "YAML file overriding the embedded endpoint config")
	extractCmd.Flags().String("data-final", "", "Last proposal date, YYYYMMDD (default from endpoint config)")
	extractCmd.Flags().String("data-inicial", "", "First proposal date, YYYYMMDD")
	extractCmd.Flags().String("modalidade", "", "codigoModalidadeContratacao filter")
	extractCmd.Flags().String("uf", "", "State filter, e.g. SP")
	extractCmd.Flags().Int("max-retries", 3, "Retries per page on connection errors, 429 and 5xx (default from endpoint config)")
	extractCmd.Flags().Int("timeout", 60, "Per-request timeout in seconds (default from endpoint config)")
	viper.BindPFlag("pncp.max_retries", extractCmd.Flags().Lookup("max-retries"))
	viper.BindPFlag("pncp.timeout_seconds", extractCmd.Flags().Lookup("timeout"))
}
