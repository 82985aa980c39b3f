// Package calcheck implements the calcheck diagnostic command: ingest a
// target and a candidate frame into an ephemeral in-memory catalog, run
// the association for a calibration type, and report whether the
// candidate would have been offered.
package calcheck

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/GeminiDRSoftware/GeminiCalMgr/assoc"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog/inmem"
	"github.com/GeminiDRSoftware/GeminiCalMgr/cmd/internal/env"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/instruments"
)

type params struct {
	caltype string
}

// Command builds the calcheck cobra.Command and attaches it to root.
func Command(root *cobra.Command) *cobra.Command {
	p := &params{}
	cmd := &cobra.Command{
		Use:   "calcheck <target_file> <cal_type> <candidate_file>",
		Short: "Check whether a candidate frame would be offered as a calibration for a target frame",
		Long:  "calcheck ingests a target and a candidate frame into an ephemeral in-memory catalog, associates calibrations for the target, and reports whether the candidate is among the results.",
		Args:  cobra.ExactArgs(3),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			os.Exit(run(args[0], args[1], args[2], os.Stdout))
			return nil
		},
	}
	root.AddCommand(cmd)
	return cmd
}

func run(targetPath, caltypeArg, candidatePath string, w io.Writer) int {
	target, err := loadFrame(targetPath)
	if err != nil {
		fmt.Fprintln(w, err)
		return 2
	}
	candidate, err := loadFrame(candidatePath)
	if err != nil {
		fmt.Fprintln(w, err)
		return 2
	}

	caltype := caltypeArg
	if caltype == "" || caltype == "auto" {
		caltype = detectCalType(candidate)
	}

	cat := inmem.New()
	cat.Ingest(target.toRow())
	candidateID := cat.Ingest(candidate.toRow())

	registry := instruments.NewRegistry()
	orch := assoc.New(registry, cat, nil)

	targetBundle := target.toBundle()
	rows, err := orch.Associate(context.Background(), []*descriptor.Bundle{targetBundle}, caltype, 0)
	if err != nil {
		fmt.Fprintln(w, err)
		return 2
	}

	for _, r := range rows {
		if r.Header.ID == candidateID {
			fmt.Fprintf(w, "PASS: candidate matched as %q\n", caltype)
			return 0
		}
	}

	fmt.Fprintf(w, "FAIL: candidate was not offered for %q\n\n", caltype)
	printDiagnostic(w, targetBundle, candidate)
	return 1
}

// diagnosticFields is the fixed set of common descriptors calcheck
// compares between target and candidate when a match fails, an exemplary
// (not exhaustive) subset of what any given rule might actually filter on.
var diagnosticFields = []string{
	"instrument", "observation_type", "exposure_time", "central_wavelength",
	"disperser", "filter_name", "focal_plane_mask", "detector_binning", "gcal_lamp",
}

func printDiagnostic(w io.Writer, target *descriptor.Bundle, candidate *frameDoc) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Predicate", "Target", "Candidate", "Match"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	candidateBundle := candidate.toBundle()
	for _, field := range diagnosticFields {
		tv, tok := target.Value(field)
		cv, cok := candidateBundle.Value(field)
		match := "n/a"
		if tok && cok {
			if valuesEqual(tv, cv) {
				match = "yes"
			} else {
				match = "NO"
			}
		}
		table.Append([]string{field, formatValue(tv, tok), formatValue(cv, cok), match})
	}
	table.Render()
}

func formatValue(v any, ok bool) string {
	if !ok || v == nil {
		return "(unset)"
	}
	return fmt.Sprintf("%v", v)
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return math.Abs(af-bf) < 1e-9
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	}
	return 0, false
}
