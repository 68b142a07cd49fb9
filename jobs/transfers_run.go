package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/transfers"
)

const (
	// TaskTransfersRun schedules the automatic transfer engine.
	TaskTransfersRun = "transfers:run"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TransfersRunPayload selects which transfer models the run covers.
type TransfersRunPayload struct {
	Model string `json:"model"`
}

// TransferRunner executes automatic transfer models.
type TransferRunner interface {
	RunAllModels(ctx context.Context) ([]transfers.RunStats, error)
	PerformAutoTransfer(ctx context.Context, modelID int64) (transfers.RunStats, error)
}

// ReportInvalidator drops cached report payloads after ledger writes.
type ReportInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// TransfersRunJob coordinates a scheduled or on-demand transfer run.
type TransfersRunJob struct {
	Runner  TransferRunner
	Reports ReportInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewTransfersRunJob wires dependencies for the transfer run handler.
func NewTransfersRunJob(runner TransferRunner, reports ReportInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *TransfersRunJob {
	return &TransfersRunJob{
		Runner:  runner,
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewTransfersRunTask creates an Asynq task for running transfer models.
// model is "all" or a model id.
func NewTransfersRunTask(model string) (*asynq.Task, error) {
	if model == "" {
		model = "all"
	}
	body, err := json.Marshal(TransfersRunPayload{Model: model})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTransfersRun, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the transfer run.
func (j *TransfersRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("transfers run: handler not configured")
	}
	var payload TransfersRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Model == "" {
		payload.Model = "all"
	}

	tracker := j.metrics().Track(TaskTransfersRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.String("model", payload.Model))
	logger.Info("starting automatic transfer run")

	start := j.now()
	stats, err := j.run(ctx, payload.Model)
	if err != nil {
		resultErr = err
		logger.Error("transfer run failed", slog.Any("error", err))
		return resultErr
	}

	drafted := 0
	periods := 0
	for _, st := range stats {
		drafted += st.MovesDrafted
		periods += st.Periods
		j.metrics().AddDraftedMoves(st.ModelID, st.MovesDrafted)
	}
	if drafted > 0 && j.Reports != nil {
		if err := j.Reports.InvalidateCache(ctx); err != nil {
			logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}

	logger.Info("completed automatic transfer run",
		slog.Int("models", len(stats)),
		slog.Int("periods", periods),
		slog.Int("moves_drafted", drafted),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *TransfersRunJob) run(ctx context.Context, model string) ([]transfers.RunStats, error) {
	if model == "all" {
		return j.Runner.RunAllModels(ctx)
	}
	id, err := strconv.ParseInt(model, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid transfer model %s", model)
	}
	stats, err := j.Runner.PerformAutoTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	return []transfers.RunStats{stats}, nil
}

func (j *TransfersRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TransfersRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTransfersRun))
	}
	return slog.Default().With(slog.String("job", TaskTransfersRun))
}

func (j *TransfersRunJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *TransfersRunJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
