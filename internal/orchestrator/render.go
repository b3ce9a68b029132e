package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/carewh-lab/carewh/internal/migrations"
	"gopkg.in/yaml.v3"
)

// Format selects how reports are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (must be text, json or yaml)", s)
	}
}

// WriteReport prints a run report.
func WriteReport(w io.Writer, format Format, r *Report) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, r)
	}

	fmt.Fprintf(w, "Run %s: %s (exit %d)\n", r.RunID, r.State, r.ExitCode())
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Finished: %s\n", r.FinishedAt.Format(time.RFC3339))

	if len(r.Stages) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tLOAD UNIT\tSELECTED\tINSERTED\tUPDATED\tSKIPPED\tWATERMARK\tDURATION")
		for _, s := range r.Stages {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
				s.State, s.Unit, s.Selected, s.Inserted, s.Updated, s.Skipped,
				s.Watermark.Format(time.RFC3339), s.Duration)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if r.State == StateFailed {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Failed stage: %s (%s)\n", r.FailedStage, r.FailedState)
		fmt.Fprintf(w, "Error kind:   %s\n", r.ErrorKind)
		fmt.Fprintf(w, "Error:        %s\n", r.Error)
		fmt.Fprintf(w, "Committed:    %d stage(s)\n", r.CommittedStages)
	}

	if r.Verification != nil {
		fmt.Fprintln(w)
		return writeVerificationText(w, r.Verification)
	}
	return nil
}

// WriteVerification prints table counts and watermarks.
func WriteVerification(w io.Writer, format Format, v *Verification) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatYAML:
		return writeYAML(w, v)
	}
	return writeVerificationText(w, v)
}

func writeVerificationText(w io.Writer, v *Verification) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")
	for _, c := range v.Tables {
		fmt.Fprintf(tw, "%s\t%d\n", c.Table, c.Rows)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOAD UNIT\tLAST LOAD\tROWS\tKIND")
	for _, m := range v.Watermarks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.LoadUnit, m.LastLoad.Format(time.RFC3339), m.RowsProcessed, m.Kind)
	}
	return tw.Flush()
}

// WriteSchemaStatus prints the warehouse schema version.
func WriteSchemaStatus(w io.Writer, format Format, st migrations.Status) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, st)
	case FormatYAML:
		return writeYAML(w, st)
	}

	fmt.Fprintf(w, "Warehouse schema version %d of %d\n", st.Version, st.Latest)
	if st.Dirty {
		fmt.Fprintln(w, "Schema is dirty, rerun migrate to recover")
	}
	if len(st.Pending) > 0 {
		fmt.Fprintf(w, "Pending migrations: %s\n", joinVersions(st.Pending))
	}
	if len(st.EncounterTypes) > 0 {
		fmt.Fprintf(w, "Encounter types: %s\n", strings.Join(st.EncounterTypes, ", "))
	}
	if st.UpToDate() {
		fmt.Fprintln(w, "Warehouse schema is up to date")
	}
	return nil
}

func joinVersions(vs []uint) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
