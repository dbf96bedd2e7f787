package cli

import (
	"errors"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/david/licitacoes/internal/browse"
	"github.com/david/licitacoes/internal/db"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the snapshots on disk and the filter options of the clean one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		paths := db.Paths{Dir: viper.GetString("snapshot.dir")}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Stage", "Run", "Created At", "Rows", "Columns", "File"})
		for _, path := range []string{paths.RawSQLite(), paths.CleanSQLite()} {
			info, err := db.ReadInfo(ctx, path)
			if errors.Is(err, db.ErrSnapshotNotFound) {
				t.AppendRow(table.Row{"-", "missing", "", "", "", path})
				continue
			}
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{info.Stage, info.RunID, info.CreatedAt.Local().Format(time.DateTime), info.RowCount, info.Columns, path})
		}
		t.Render()

		ds, err := db.LoadSnapshot(ctx, paths.CleanSQLite())
		if errors.Is(err, db.ErrSnapshotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		cfg := browse.DefaultConfig()
		all := browse.Apply(ds, browse.Criteria{}, nil, cfg)

		f := table.NewWriter()
		f.SetOutputMirror(os.Stdout)
		f.AppendHeader(table.Row{"Filter Column", "Distinct Values"})
		facets := browse.FacetOptions(ds, cfg)
		for _, col := range []string{cfg.StatusColumn, cfg.StateColumn, cfg.MunicipalityColumn, cfg.ModalityColumn} {
			f.AppendRow(table.Row{col, len(facets[col])})
		}
		f.AppendFooter(table.Row{"Total value", all.Stats.TotalDisplay()})
		f.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
