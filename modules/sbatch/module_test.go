package sbatch

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/slurm"
	"github.com/vk/actiongrid/internal/target"
	"github.com/vk/actiongrid/internal/testutil"
)

func TestSubstitution(t *testing.T) {
	testCases := []struct {
		old, repl, want string
	}{
		{"LABEL_RC2", "6.0", "s/LABEL_RC2/6.0/g"},
		{"PATH", "/opt/tdep/bin", `s/PATH/\/opt\/tdep\/bin/g`},
		{"A.B", "x&y", `s/A\.B/x\&y/g`},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, substitution(tc.old, tc.repl))
	}
}

func TestSbatch_SubmitsStagedScript(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")

	polls := 0
	ft.Handler = func(c testutil.Call) (target.Result, error) {
		switch c.Cmd {
		case "sbatch":
			return target.Result{Stdout: "Submitted batch job 4711\n"}, nil
		case "squeue":
			polls++
			if polls < 2 {
				return target.Result{Stdout: "4711 normal sub_fcs\n"}, nil
			}
		}
		return target.Result{}, nil
	}

	a, err := Kind.New(ctx, Params{
		Label:     "sub_fcs_6.0_5.0",
		Script:    "../sub_fcs.sh",
		Replace:   map[string]string{"LABEL_RC3": "5.0", "LABEL_RC2": "6.0"},
		Inputs:    []string{"infile.forces"},
		InputRoot: "..",
		Args:      []string{"--parsable"},
	}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))

	job := action.NewScheduled(a, slurm.New(), action.WithPollInterval(time.Millisecond))
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, "4711", job.JobID())
	assert.Equal(t, action.Finished, a.State())

	var got []string
	for _, c := range ft.Calls() {
		got = append(got, testutil.Joined(c))
	}
	want := []string{
		"ln -sf ../infile.forces /scratch/sub_fcs_6.0_5.0/infile.forces",
		"cp -r ../sub_fcs.sh /scratch/sub_fcs_6.0_5.0/sub_fcs.sh",
		"sed -i s/LABEL_RC2/6.0/g /scratch/sub_fcs_6.0_5.0/sub_fcs.sh",
		"sed -i s/LABEL_RC3/5.0/g /scratch/sub_fcs_6.0_5.0/sub_fcs.sh",
		"sbatch sub_fcs.sh --parsable",
		"squeue",
		"squeue",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSbatch_CopyFailureLeavesNew(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")
	ft.Handler = func(c testutil.Call) (target.Result, error) {
		if c.Cmd == "cp" {
			return target.Result{ExitCode: 1, Stderr: "cp: cannot stat 'job.sh'"}, nil
		}
		return target.Result{}, nil
	}

	a, err := Kind.New(ctx, Params{Label: "job", Script: "job.sh", InputRoot: ".."}, nil, ft)
	require.NoError(t, err)
	err = a.Prepare(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot stat")
	assert.Equal(t, action.New, a.State())
}

func TestParams_Validate(t *testing.T) {
	p := &Params{}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label is required")
	assert.Contains(t, err.Error(), "script is required")

	p = &Params{Label: "x", Script: "a.sh"}
	p.Default()
	assert.NoError(t, p.Validate())
	assert.Equal(t, "..", p.InputRoot)
}

func TestSbatch_InputRootDefaultsWithoutRegistry(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ft := testutil.NewFakeTarget("/scratch")

	a, err := Kind.New(ctx, Params{Label: "job", Script: "job.sh", Inputs: []string{"infile.meta"}}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))

	calls := ft.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "ln -sf ../infile.meta /scratch/job/infile.meta", testutil.Joined(calls[0]))
}
