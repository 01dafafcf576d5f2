package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/errors"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (call_id, caller_id, callee_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.CalleeID,
		call.Status,
		call.CreatedAt,
	)

	if err != nil {
		return errors.DatabaseError(fmt.Errorf("failed to create call: %w", err))
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT call_id, caller_id, callee_id, status, created_at, ended_at
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.CallerID,
		&call.CalleeID,
		&call.Status,
		&call.CreatedAt,
		&call.EndedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.CallNotFoundError()
		}
		return nil, errors.DatabaseError(fmt.Errorf("failed to get call: %w", err))
	}

	return call, nil
}

// MarkActive transitions a call from created to active. Returns false when the
// call was not in the created state, so concurrent answers cannot race past
// the transition.
func (r *CallRepository) MarkActive(ctx context.Context, callID uuid.UUID) (bool, error) {
	query := `
		UPDATE calls
		SET status = 'active'
		WHERE call_id = $1 AND status = 'created'
	`

	cmdTag, err := r.pool.Exec(ctx, query, callID)
	if err != nil {
		return false, errors.DatabaseError(fmt.Errorf("failed to activate call: %w", err))
	}

	return cmdTag.RowsAffected() > 0, nil
}

// MarkEnded transitions a call to the terminal ended state. Returns false when
// the call was already ended; exactly one of two concurrent callers wins.
func (r *CallRepository) MarkEnded(ctx context.Context, callID uuid.UUID) (bool, error) {
	query := `
		UPDATE calls
		SET status = 'ended', ended_at = NOW()
		WHERE call_id = $1 AND status <> 'ended'
	`

	cmdTag, err := r.pool.Exec(ctx, query, callID)
	if err != nil {
		return false, errors.DatabaseError(fmt.Errorf("failed to end call: %w", err))
	}

	return cmdTag.RowsAffected() > 0, nil
}

// GetOpenCallsForUser retrieves all non-ended calls the user is party to.
// Used for implicit termination when a participant's last connection drops.
func (r *CallRepository) GetOpenCallsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	query := `
		SELECT call_id, caller_id, callee_id, status, created_at, ended_at
		FROM calls
		WHERE (caller_id = $1 OR callee_id = $1) AND status <> 'ended'
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to get open calls: %w", err))
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.CallerID,
			&call.CalleeID,
			&call.Status,
			&call.CreatedAt,
			&call.EndedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError(fmt.Errorf("failed to scan call: %w", err))
		}
		calls = append(calls, call)
	}

	return calls, nil
}

// GetUserCalls retrieves call history for a user, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT call_id, caller_id, callee_id, status, created_at, ended_at
		FROM calls
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to get user calls: %w", err))
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.CallerID,
			&call.CalleeID,
			&call.Status,
			&call.CreatedAt,
			&call.EndedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError(fmt.Errorf("failed to scan call: %w", err))
		}
		calls = append(calls, call)
	}

	return calls, nil
}
