package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/vk/actiongrid/internal/workflow"
)

// writeSummary prints one row per declared action followed by the state
// counts.
func writeSummary(w io.Writer, r *workflow.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSTATE\tJOB\tPATH\tNOTE")
	for _, e := range r.Entries {
		note := e.Error
		if e.BlockedBy != "" {
			note = "blocked by " + e.BlockedBy
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Name, e.Kind, e.StateName, dash(e.JobID), dash(e.Path), note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := r.Counts()
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	_, err := fmt.Fprintf(w, "\n%d actions: %s\n", len(r.Entries), strings.Join(parts, " "))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
