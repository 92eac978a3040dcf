package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/CheRocks42/project-re-governance-protocol/internal/db"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store"
)

type EvidenceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	now    func() time.Time
}

func NewEvidenceStore(db *sql.DB, writer *dbpkg.Worker) *EvidenceStore {
	return &EvidenceStore{db: db, writer: writer, now: func() time.Time { return time.Now().UTC() }}
}

// AppendEvents writes a batch in one transaction. Rows already present under
// the same (run_id, seq) are left untouched.
func (s *EvidenceStore) AppendEvents(ctx context.Context, events []store.ArchivedEvent) error {
	if len(events) == 0 {
		return nil
	}
	exportedMs := s.now().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, ev := range events {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO audit_runs(run_id, started_at_ms) VALUES (?, ?);
`, ev.RunID, ev.Timestamp.UTC().UnixMilli()); err != nil {
				return fmt.Errorf("AppendEvents run %s: %w", ev.RunID, err)
			}

			var ghost int
			if ev.Ghost {
				ghost = 1
			}

			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO audit_events(
  run_id, seq, event_id, ts_ms, action, risk, state, ghost, summary, raw_log,
  prev_hash, hash, ts_sig, signature, thought_signature, related_message_id,
  exported_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
				ev.RunID, ev.Seq, ev.EventID, ev.Timestamp.UTC().UnixMilli(),
				ev.Action, ev.Risk, ev.State, ghost, ev.Summary, ev.RawLog,
				ev.PrevHash, ev.Hash, ev.TimestampSignature,
				nullable(ev.Signature), nullable(ev.ThoughtSignature), nullable(ev.RelatedMessageID),
				exportedMs,
			); err != nil {
				return fmt.Errorf("AppendEvents seq %d: %w", ev.Seq, err)
			}
		}
		return nil
	})
}

func (s *EvidenceStore) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT MAX(seq) FROM audit_events WHERE run_id = ?;
`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("LastSeq: %w", err)
	}
	return seq.Int64, nil
}

func (s *EvidenceStore) ListEvents(ctx context.Context, runID string) ([]store.ArchivedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_id, ts_ms, action, risk, state, ghost, summary, raw_log,
       prev_hash, hash, ts_sig, signature, thought_signature, related_message_id
FROM audit_events
WHERE run_id = ?
ORDER BY seq;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer rows.Close()

	var out []store.ArchivedEvent
	for rows.Next() {
		var (
			ev                             store.ArchivedEvent
			tsMs                           int64
			ghost                          int
			signature, thought, relatedMsg sql.NullString
		)
		if err := rows.Scan(
			&ev.Seq, &ev.EventID, &tsMs, &ev.Action, &ev.Risk, &ev.State, &ghost,
			&ev.Summary, &ev.RawLog, &ev.PrevHash, &ev.Hash, &ev.TimestampSignature,
			&signature, &thought, &relatedMsg,
		); err != nil {
			return nil, fmt.Errorf("ListEvents scan: %w", err)
		}
		ev.RunID = runID
		ev.Timestamp = time.UnixMilli(tsMs).UTC()
		ev.Ghost = ghost == 1
		ev.Signature = signature.String
		ev.ThoughtSignature = thought.String
		ev.RelatedMessageID = relatedMsg.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents rows: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
