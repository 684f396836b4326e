package graph

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ExportSQLite writes a snapshot of the graph into a SQLite database for
// ad-hoc SQL analysis. The export is a derived artifact: existing rows are
// cleared first, and nothing ever reads the database back into a graph.
func ExportSQLite(ctx context.Context, path string, g *Graph) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open export database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to export database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply export schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"edges", "files", "steps"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := exportSteps(ctx, tx, g); err != nil {
		return err
	}
	fileIDs, err := exportFiles(ctx, tx, g)
	if err != nil {
		return err
	}
	if err := exportEdges(ctx, tx, g, fileIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

func exportSteps(ctx context.Context, tx *sql.Tx, g *Graph) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps (step_id, step_name, run_id, cmd_module, cmd_name,
			beg_time_ms, end_time_ms, record_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare steps insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range g.Steps() {
		rec := s.Record
		_, err := stmt.ExecContext(ctx, s.ID, s.StepName, rec.RunID,
			rec.CmdModule, rec.CmdName,
			rec.RunInfo.BegTimeMillis, rec.RunInfo.EndTimeMillis, s.RecordFile)
		if err != nil {
			return fmt.Errorf("insert step %s: %w", s.ID, err)
		}
	}
	return nil
}

func exportFiles(ctx context.Context, tx *sql.Tx, g *Graph) (map[FileID]int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (realpath, hash, mtime, fname, size, owner)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare files insert: %w", err)
	}
	defer stmt.Close()

	ids := make(map[FileID]int64, len(g.files))
	for _, f := range g.Files() {
		res, err := stmt.ExecContext(ctx, f.ID.RealPath, f.ID.Hash, f.ID.Mtime,
			f.Fname, f.Size, f.Owner)
		if err != nil {
			return nil, fmt.Errorf("insert file %s: %w", f.ID.RealPath, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("file surrogate id: %w", err)
		}
		ids[f.ID] = id
	}
	return ids, nil
}

func exportEdges(ctx context.Context, tx *sql.Tx, g *Graph, fileIDs map[FileID]int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (step_id, file_id, direction, arg, reconstructed)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edges insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range g.edgesSorted() {
		var stepID string
		var fileID int64
		var direction string
		switch {
		case e.From.IsFile():
			stepID, fileID, direction = e.To.Step(), fileIDs[e.From.File()], "in"
		default:
			stepID, fileID, direction = e.From.Step(), fileIDs[e.To.File()], "out"
		}
		if _, err := stmt.ExecContext(ctx, stepID, fileID, direction, e.Arg, e.Reconstructed); err != nil {
			return fmt.Errorf("insert edge %s/%s: %w", stepID, e.Arg, err)
		}
	}
	return nil
}
