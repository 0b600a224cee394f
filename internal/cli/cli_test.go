package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/actiongrid/internal/app"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		want     *app.Config
		wantExit bool
		wantCode int
	}{
		{
			name: "positional path with defaults",
			args: []string{"wf.hcl"},
			want: &app.Config{WorkflowPath: "wf.hcl", LogFormat: "text", LogLevel: "info"},
		},
		{
			name: "long flag wins over shorthand",
			args: []string{"-workflow", "a.yaml", "-w", "b.yaml"},
			want: &app.Config{WorkflowPath: "a.yaml", LogFormat: "text", LogLevel: "info"},
		},
		{
			name: "all options",
			args: []string{"-w", "dir", "-workdir", "/scratch", "-status-port", "9090", "-log-format", "JSON", "-log-level", "debug"},
			want: &app.Config{WorkflowPath: "dir", Workdir: "/scratch", StatusPort: 9090, LogFormat: "json", LogLevel: "debug"},
		},
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "no path prints usage", args: nil, wantExit: true},
		{name: "unknown flag", args: []string{"-nope"}, wantCode: 2},
		{name: "bad log format", args: []string{"-log-format", "xml", "wf.hcl"}, wantCode: 2},
		{name: "bad log level", args: []string{"-log-level", "trace", "wf.hcl"}, wantCode: 2},
		{name: "bad status port", args: []string{"-status-port", "-1", "wf.hcl"}, wantCode: 2},
		{name: "extra arguments", args: []string{"a.hcl", "b.hcl"}, wantCode: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, exit, err := Parse(tc.args, &out)

			if tc.wantCode != 0 {
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, tc.wantCode, exitErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, exit)
			if tc.wantExit {
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			assert.Equal(t, tc.want, cfg)
		})
	}
}
