package slurm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/runner"
	"github.com/vk/actiongrid/internal/target"
	"github.com/vk/actiongrid/internal/testutil"
)

func TestParseJobID(t *testing.T) {
	testCases := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "default", out: "Submitted batch job 123456\n", want: "123456"},
		{name: "after noise", out: "sbatch: loading modules\nSubmitted batch job 42", want: "42"},
		{name: "parsable", out: "98765\n", want: "98765"},
		{name: "parsable with cluster", out: "98765;snowy", want: "98765"},
		{name: "empty", out: "", wantErr: true},
		{name: "error text", out: "sbatch: error: Batch job submission failed", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJobID(tc.out)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNoJobID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestActive_BuildsCommand(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/home/u")
	ft.Handler = testutil.Reply(0, "JOBID\n123\n", "")

	s := New(WithSqueue("squeue", "-h"), WithUser("alice"))
	listing, err := s.Active(ctx, ft)
	require.NoError(t, err)
	assert.Equal(t, "JOBID\n123\n", listing)

	calls := ft.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "squeue -h -u alice", testutil.Joined(calls[0]))
}

func TestActive_NonZeroExitIsError(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/home/u")
	ft.Handler = testutil.Reply(1, "", "slurm_load_jobs error: Unable to contact slurm controller")

	_, err := New().Active(ctx, ft)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to contact slurm controller")
}

func TestActive_TargetError(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/home/u")
	ft.Err = errors.New("session closed")

	_, err := New().Active(ctx, ft)
	assert.ErrorIs(t, err, ft.Err)
}

func TestScheduler_DrivesScheduledAction(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")

	polls := 0
	ft.Handler = func(c testutil.Call) (target.Result, error) {
		switch c.Cmd {
		case "sbatch":
			return target.Result{Stdout: "Submitted batch job 777"}, nil
		case "squeue":
			polls++
			if polls < 3 {
				return target.Result{Stdout: "JOBID PARTITION\n  777 normal\n"}, nil
			}
			return target.Result{Stdout: "JOBID PARTITION\n"}, nil
		}
		return target.Result{}, nil
	}

	kind := action.MustDefine[struct{}]("sbatch", action.Base[struct{}]{},
		action.WithCommand(runner.NewCommand("sbatch", "job.sh")))
	a, err := kind.New(ctx, struct{}{}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))

	job := action.NewScheduled(a, New(), action.WithPollInterval(time.Millisecond))
	require.NoError(t, action.RunAll(ctx, []*action.Scheduled{job}))

	assert.Equal(t, "777", job.JobID())
	assert.Equal(t, action.Finished, job.State())
	assert.Equal(t, 3, polls)
}

func TestJobID_MissingOutLog(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")
	kind := action.MustDefine[struct{}]("sbatch", action.Base[struct{}]{},
		action.WithCommand(runner.NewCommand("sbatch")))
	a, err := kind.New(context.Background(), struct{}{}, nil, ft)
	require.NoError(t, err)

	_, err = New().JobID(ctx, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading submission output")
}
