package db

import "path/filepath"

const (
	rawBase   = "contracts"
	cleanBase = "contracts_clean"
)

// Paths locates the four snapshot files under one directory.
type Paths struct {
	Dir string
}

func (p Paths) RawSQLite() string   { return filepath.Join(p.Dir, rawBase+".sqlite") }
func (p Paths) RawCSV() string      { return filepath.Join(p.Dir, rawBase+".csv") }
func (p Paths) CleanSQLite() string { return filepath.Join(p.Dir, cleanBase+".sqlite") }
func (p Paths) CleanCSV() string    { return filepath.Join(p.Dir, cleanBase+".csv") }
