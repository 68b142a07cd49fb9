package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
)

const (
	// TaskLedgerIntegrity schedules the general ledger integrity scan.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload scopes the scan to one company or all of them.
type LedgerIntegrityPayload struct {
	CompanyID int64 `json:"company_id"`
}

// LedgerIntegrityJob looks for posted moves whose lines do not balance.
// Posting enforces the invariant, so a hit means out-of-band writes or
// corruption and warrants a loud warning.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewLedgerIntegrityTask creates an Asynq task for the integrity scan.
// companyID zero scans every company.
func NewLedgerIntegrityTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

type unbalancedMove struct {
	MoveID    int64
	CompanyID int64
	Reference string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log()
	if payload.CompanyID > 0 {
		logger = logger.With(slog.Int64("company_id", payload.CompanyID))
	}
	logger.Info("starting ledger integrity scan")

	start := j.now()
	moves, err := j.scan(ctx, payload.CompanyID)
	if err != nil {
		resultErr = err
		logger.Error("integrity scan failed", slog.Any("error", err))
		return resultErr
	}

	perCompany := map[int64]int{}
	for _, m := range moves {
		perCompany[m.CompanyID]++
		logger.Warn("unbalanced posted move",
			slog.Int64("move_id", m.MoveID),
			slog.Int64("company_id", m.CompanyID),
			slog.String("reference", m.Reference),
			slog.String("debit", m.Debit.String()),
			slog.String("credit", m.Credit.String()))
	}
	for companyID, count := range perCompany {
		j.metrics().AddUnbalanced(companyID, count)
	}

	logger.Info("completed ledger integrity scan",
		slog.Int("unbalanced", len(moves)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *LedgerIntegrityJob) scan(ctx context.Context, companyID int64) ([]unbalancedMove, error) {
	query := `
		SELECT m.id, m.company_id, m.reference,
		       COALESCE(SUM(ml.debit), 0) AS total_debit,
		       COALESCE(SUM(ml.credit), 0) AS total_credit
		FROM moves m
		LEFT JOIN move_lines ml ON ml.move_id = m.id
		WHERE m.state = 'posted' AND ($1 = 0 OR m.company_id = $1)
		GROUP BY m.id, m.company_id, m.reference
		HAVING COALESCE(SUM(ml.debit), 0) <> COALESCE(SUM(ml.credit), 0)
		ORDER BY m.id`
	rows, err := j.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := make([]unbalancedMove, 0)
	for rows.Next() {
		var m unbalancedMove
		if err := rows.Scan(&m.MoveID, &m.CompanyID, &m.Reference, &m.Debit, &m.Credit); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return moves, nil
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
