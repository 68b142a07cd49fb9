package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/reports"
)

const (
	// TaskReportsWarmup schedules the report cache warmup.
	TaskReportsWarmup = "reports:warmup"
)

// ReportsWarmupPayload configures the warmup scope.
type ReportsWarmupPayload struct {
	Scope string `json:"scope"`
}

// ReportsWarmupJob pre-populates report caches for every company so the
// first morning reader does not pay the aggregation cost.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(reportsSvc *reports.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reportsSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewReportsWarmupTask creates an Asynq task for the report warmup.
func NewReportsWarmupTask(scope string) (*asynq.Task, error) {
	if scope == "" {
		scope = "all"
	}
	body, err := json.Marshal(ReportsWarmupPayload{Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, body, asynq.Queue(QueueDefault)), nil
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log()
	logger.Info("starting report warmup")

	companyIDs, err := j.fetchCompanies(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load warmup companies", slog.Any("error", err))
		return resultErr
	}
	if len(companyIDs) == 0 {
		logger.Info("no companies discovered for warmup")
		return resultErr
	}

	now := j.now()
	warmed := 0
	for _, companyID := range companyIDs {
		if err := j.warmCompany(ctx, companyID, now); err != nil {
			resultErr = err
			logger.Error("warm company", slog.Int64("company_id", companyID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed report warmup", slog.Int("companies", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *ReportsWarmupJob) warmCompany(ctx context.Context, companyID int64, now time.Time) error {
	// Tighten each company execution with a timeout to avoid long-running jobs.
	companyCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if _, err := j.Reports.BalanceSheet(companyCtx, reports.BalanceSheetOptions{
		CompanyID:                  companyID,
		DateTo:                     today,
		PostedOnly:                 true,
		IncludeCurrentYearEarnings: true,
	}); err != nil {
		return err
	}
	if _, err := j.Reports.ProfitAndLoss(companyCtx, reports.ProfitAndLossOptions{
		CompanyID:  companyID,
		DateFrom:   yearStart,
		DateTo:     today,
		PostedOnly: true,
	}); err != nil {
		return err
	}
	if _, err := j.Reports.TrialBalance(companyCtx, reports.TrialBalanceOptions{
		CompanyID:  companyID,
		DateFrom:   monthStart,
		DateTo:     today,
		PostedOnly: true,
	}); err != nil {
		return err
	}
	return nil
}

func (j *ReportsWarmupJob) fetchCompanies(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("reports warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
