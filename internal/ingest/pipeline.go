package ingest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/david/licitacoes/internal/db"
	"github.com/david/licitacoes/internal/logging"
	"github.com/david/licitacoes/internal/models"
)

// Fetcher returns the full raw dataset for a parameter bag, or an error and
// no data.
type Fetcher interface {
	QueryAll(ctx context.Context, params Params) (*models.Dataset, error)
}

// Pipeline runs fetch, raw snapshot, normalize and clean snapshot.
type Pipeline struct {
	Fetcher Fetcher
	Paths   db.Paths
}

func NewPipeline(fetcher Fetcher, snapshotDir string) *Pipeline {
	return &Pipeline{Fetcher: fetcher, Paths: db.Paths{Dir: snapshotDir}}
}

type ExtractOptions struct {
	// FullLoad queries the API. Otherwise the raw snapshot is reloaded and
	// only normalization runs again.
	FullLoad bool
	Params   Params
}

type ExtractResult struct {
	Raw       *models.Dataset
	Clean     *models.Dataset
	Stats     NormalizeStats
	RawInfo   *models.SnapshotInfo
	CleanInfo *models.SnapshotInfo
}

// Extract produces both snapshots. A failed fetch leaves existing snapshot
// files untouched.
func (p *Pipeline) Extract(ctx context.Context, opts ExtractOptions) (*ExtractResult, error) {
	res := &ExtractResult{}

	if opts.FullLoad {
		logging.Log.Info("Starting full load from PNCP")
		raw, err := p.Fetcher.QueryAll(ctx, opts.Params)
		if err != nil {
			logging.Log.Errorf("Fetch failed, no data saved: %v", err)
			return nil, err
		}
		res.Raw = raw

		if err := db.WriteCSV(p.Paths.RawCSV(), raw); err != nil {
			return nil, err
		}
		info, err := db.SaveSnapshot(ctx, p.Paths.RawSQLite(), raw, db.StageRaw)
		if err != nil {
			return nil, err
		}
		res.RawInfo = info
		logging.Log.Infof("Raw snapshot saved: %d records (run %s)", raw.Len(), info.RunID)
	} else {
		raw, err := db.LoadSnapshot(ctx, p.Paths.RawSQLite())
		if err != nil {
			return nil, fmt.Errorf("loading raw snapshot: %w", err)
		}
		res.Raw = raw
		logging.Log.Infof("Loaded raw snapshot: %d records", raw.Len())
	}

	clean, stats := Normalize(res.Raw)
	res.Clean = clean
	res.Stats = stats
	logging.Log.WithFields(logrus.Fields{
		"input":          stats.InputRows,
		"output":         stats.OutputRows,
		"duplicates":     stats.Duplicates,
		"dates_nulled":   stats.DatesNulled,
		"unmapped_power": stats.UnmappedPower,
	}).Info("Normalization complete")
	for name, key := range stats.Namespaced {
		logging.Log.Debugf("Flattened key %q stored as %q", key, name)
	}

	if err := db.WriteCSV(p.Paths.CleanCSV(), clean); err != nil {
		return nil, err
	}
	info, err := db.SaveSnapshot(ctx, p.Paths.CleanSQLite(), clean, db.StageClean)
	if err != nil {
		return nil, err
	}
	res.CleanInfo = info
	logging.Log.Infof("Clean snapshot saved: %d records (run %s)", clean.Len(), info.RunID)

	return res, nil
}
