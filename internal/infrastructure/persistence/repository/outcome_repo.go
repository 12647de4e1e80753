package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// fixed width so stored timestamps sort lexically
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// OutcomeRepository implements port.OutcomeRepository on SQLite. The full
// outcome is kept as JSON next to the columns used for filtering.
type OutcomeRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOutcomeRepository creates a new outcome repository
func NewOutcomeRepository(db *sqlite.DB, logger *zap.Logger) *OutcomeRepository {
	return &OutcomeRepository{db: db, logger: logger}
}

// Save inserts or replaces the outcome of a run
func (r *OutcomeRepository) Save(ctx context.Context, outcome *entity.ClaimOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	var (
		documentID, filename, mediaType, category, digest string
		action, step, rationale                           string
		failureStage, failureReason                       string
		amount, risk                                      sql.NullFloat64
		isValid                                           sql.NullBool
	)
	if d := outcome.Document; d != nil {
		documentID, filename, mediaType, category, digest = d.ID, d.Filename, d.MediaType, string(d.Category), d.Digest
	}
	if d := outcome.Decision; d != nil {
		action, step, rationale = string(d.Action), d.Step, d.Rationale
	}
	if f := outcome.Failure; f != nil {
		failureStage, failureReason = string(f.Stage), f.Reason
	}
	if c := outcome.Claim; c != nil && c.Amount != nil {
		amount = sql.NullFloat64{Float64: *c.Amount, Valid: true}
	}
	if v := outcome.Validation; v != nil {
		risk = sql.NullFloat64{Float64: v.RiskScore, Valid: true}
		isValid = sql.NullBool{Bool: v.IsValid, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO claim_outcomes (
			run_id, document_id, filename, media_type, category, digest,
			state, action, step, rationale, amount, risk_score, is_valid,
			failure_stage, failure_reason, settlement_ref, structuring_attempts,
			payload, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		outcome.RunID, documentID, filename, mediaType, category, digest,
		outcome.State, action, step, rationale, amount, risk, isValid,
		failureStage, failureReason, outcome.SettlementRef, outcome.StructuringAttempts,
		string(payload), formatTime(outcome.StartedAt), formatTime(outcome.CompletedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save claim outcome", zap.String("run_id", outcome.RunID), zap.Error(err))
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// GetByRunID loads one outcome or returns port.ErrOutcomeNotFound
func (r *OutcomeRepository) GetByRunID(ctx context.Context, runID string) (*entity.ClaimOutcome, error) {
	var payload string
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT payload FROM claim_outcomes WHERE run_id = ?", runID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return decodeOutcome(payload)
}

// List returns outcomes newest first
func (r *OutcomeRepository) List(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, filter.State)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.DocumentID != "" {
		conds = append(conds, "document_id = ?")
		args = append(args, filter.DocumentID)
	}

	query := "SELECT payload FROM claim_outcomes"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY completed_at DESC, run_id LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*entity.ClaimOutcome
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o, err := decodeOutcome(payload)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CountByAction returns the number of routed outcomes per action
func (r *OutcomeRepository) CountByAction(ctx context.Context) (map[entity.RoutingAction]int, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		"SELECT action, COUNT(*) FROM claim_outcomes WHERE action != '' GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.RoutingAction]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[entity.RoutingAction(action)] = n
	}
	return counts, rows.Err()
}

func decodeOutcome(payload string) (*entity.ClaimOutcome, error) {
	var o entity.ClaimOutcome
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		return nil, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return &o, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var _ port.OutcomeRepository = (*OutcomeRepository)(nil)
