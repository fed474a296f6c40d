package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const historyFile = "history.db"

// History records past runs in a local SQLite database so the serve mode
// can report per-source health over time. History failures are advisory:
// callers log them and continue, they never fail a run.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the run history database in dataDir
// and applies pending migrations.
func OpenHistory(dataDir string) (*History, error) {
	db, err := sql.Open("sqlite", filepath.Join(dataDir, historyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY under the single-writer-per-run model.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// RecordCollection stores one run's per-source statuses and signal count.
func (h *History) RecordCollection(snap *signal.Snapshot) error {
	_, err := h.db.Exec(`
		INSERT INTO runs (run_id, collected_at, onchain_status, developer_status, market_status, social_status, signal_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			collected_at = excluded.collected_at,
			onchain_status = excluded.onchain_status,
			developer_status = excluded.developer_status,
			market_status = excluded.market_status,
			social_status = excluded.social_status,
			signal_count = excluded.signal_count
	`, snap.RunID, snap.CollectedAt.UTC(),
		string(snap.Result(signal.SourceOnchain).Status),
		string(snap.Result(signal.SourceDeveloper).Status),
		string(snap.Result(signal.SourceMarket).Status),
		string(snap.Result(signal.SourceSocial).Status),
		snap.Count())
	if err != nil {
		return fmt.Errorf("failed to record collection: %w", err)
	}
	return nil
}

// RecordAnalysis stores the published narrative list for one run, replacing
// any previous analysis of the same run.
func (h *History) RecordAnalysis(runID string, narratives []narrative.Narrative) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_narratives WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear previous analysis: %w", err)
	}
	for i, n := range narratives {
		_, err := tx.Exec(`
			INSERT INTO run_narratives (run_id, position, category, title, signal_strength)
			VALUES (?, ?, ?, ?, ?)
		`, runID, i, n.Category, n.Title, n.SignalStrength)
		if err != nil {
			return fmt.Errorf("failed to record narrative: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

// RunRecord is one row of run history, with the narratives published from it.
type RunRecord struct {
	RunID           string                              `json:"run_id"`
	CollectedAt     time.Time                           `json:"collected_at"`
	SourceStatuses  map[signal.Source]signal.SourceStatus `json:"source_statuses"`
	SignalCount     int                                 `json:"signal_count"`
	NarrativeCount  int                                 `json:"narrative_count"`
	NarrativeTitles []string                            `json:"narrative_titles,omitempty"`
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := h.db.Query(`
		SELECT run_id, collected_at, onchain_status, developer_status, market_status, social_status, signal_count
		FROM runs ORDER BY collected_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var onchain, developer, market, social string
		if err := rows.Scan(&rec.RunID, &rec.CollectedAt, &onchain, &developer, &market, &social, &rec.SignalCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.SourceStatuses = map[signal.Source]signal.SourceStatus{
			signal.SourceOnchain:   signal.SourceStatus(onchain),
			signal.SourceDeveloper: signal.SourceStatus(developer),
			signal.SourceMarket:    signal.SourceStatus(market),
			signal.SourceSocial:    signal.SourceStatus(social),
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range records {
		titles, err := h.narrativeTitles(records[i].RunID)
		if err != nil {
			return nil, err
		}
		records[i].NarrativeTitles = titles
		records[i].NarrativeCount = len(titles)
	}
	return records, nil
}

func (h *History) narrativeTitles(runID string) ([]string, error) {
	rows, err := h.db.Query(`
		SELECT title FROM run_narratives WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query narratives: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan narrative: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}
