package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/transfers"
	"github.com/ledgerline/ledgerline/jobs"
)

type fakeRunner struct {
	allCalls    int
	singleCalls []int64
	stats       []transfers.RunStats
	err         error
}

func (f *fakeRunner) RunAllModels(ctx context.Context) ([]transfers.RunStats, error) {
	f.allCalls++
	return f.stats, f.err
}

func (f *fakeRunner) PerformAutoTransfer(ctx context.Context, modelID int64) (transfers.RunStats, error) {
	f.singleCalls = append(f.singleCalls, modelID)
	if f.err != nil {
		return transfers.RunStats{}, f.err
	}
	return transfers.RunStats{ModelID: modelID, Periods: 1, MovesDrafted: 1}, nil
}

type fakeInvalidator struct {
	bumps int
}

func (f *fakeInvalidator) InvalidateCache(ctx context.Context) error {
	f.bumps++
	return nil
}

func TestTransfersRunAllModels(t *testing.T) {
	runner := &fakeRunner{stats: []transfers.RunStats{
		{ModelID: 1, Periods: 2, MovesDrafted: 2},
		{ModelID: 2, Periods: 1, MovesDrafted: 0},
	}}
	reports := &fakeInvalidator{}
	job := jobs.NewTransfersRunJob(runner, reports, nil, jobmetrics.NewMetrics(nil))

	task, err := jobs.NewTransfersRunTask("all")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, runner.allCalls)
	require.Empty(t, runner.singleCalls)
	require.Equal(t, 1, reports.bumps, "drafted moves must drop cached reports")
}

func TestTransfersRunSingleModel(t *testing.T) {
	runner := &fakeRunner{}
	job := jobs.NewTransfersRunJob(runner, nil, nil, nil)

	task, err := jobs.NewTransfersRunTask("42")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, runner.allCalls)
	require.Equal(t, []int64{42}, runner.singleCalls)
}

func TestTransfersRunSkipsCacheBumpWhenNothingDrafted(t *testing.T) {
	runner := &fakeRunner{stats: []transfers.RunStats{{ModelID: 1, Periods: 1}}}
	reports := &fakeInvalidator{}
	job := jobs.NewTransfersRunJob(runner, reports, nil, nil)

	task, err := jobs.NewTransfersRunTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, reports.bumps)
}

func TestTransfersRunRejections(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	job := jobs.NewTransfersRunJob(runner, nil, nil, nil)

	task, err := jobs.NewTransfersRunTask("all")
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(jobs.TaskTransfersRun, []byte("not json"))
	err = job.Handle(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)

	invalid, err := jobs.NewTransfersRunTask("zero")
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), invalid))
}
