package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/ec2keeper/internal/diagnostics"
)

// ErrDiagnosisFailed is returned after printing a report that is not
// successful, so the process exits non-zero.
var ErrDiagnosisFailed = errors.New("instance is not reachable")

// DiagnoseArgs are the flags of the diagnose command.
type DiagnoseArgs struct {
	InstanceID  string
	Region      string
	KeyPairName string
	JSON        bool
}

// Diagnose handles the diagnose command.
//
// Output is styled for interactive terminals, plain text otherwise, or JSON
// with --json.
func Diagnose(ctx context.Context, opts Options, args DiagnoseArgs) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	region := args.Region
	if region == "" {
		region = rt.cfg.Region
	}
	pairName := args.KeyPairName
	if pairName == "" {
		pairName = rt.cfg.KeyPairName
	}

	d := diagnostics.NewDiagnoser(rt.connector, rt.prober, rt.keys, rt.logger,
		diagnostics.WithSSHPort(rt.cfg.SSH.Port),
		diagnostics.WithPortTimeout(rt.timeouts.PortProbeTimeout),
	)
	report := d.Diagnose(ctx, diagnostics.Request{
		InstanceID:  args.InstanceID,
		Region:      region,
		Credentials: rt.creds,
		KeyPairName: pairName,
	})

	switch {
	case args.JSON:
		err = printJSON(report)
	case isInteractiveTTY():
		_, err = fmt.Fprint(stdout, renderReport(report))
	default:
		printReportPlain(report)
	}
	if err != nil {
		return err
	}

	if !report.Success {
		return ErrDiagnosisFailed
	}
	return nil
}

// printReportPlain writes the report without styling.
func printReportPlain(r diagnostics.Report) {
	fmt.Fprintln(stdout)
	title := fmt.Sprintf("ec2keeper diagnose: %s", r.InstanceID)
	fmt.Fprintf(stdout, "  %s\n", title)
	fmt.Fprintln(stdout, "  "+strings.Repeat("═", len(title)))
	fmt.Fprintln(stdout)

	for _, f := range r.Findings {
		fmt.Fprintf(stdout, "  %s  %-16s %s\n", severityIndicator(f.Severity), f.Check, f.Message)
	}

	if len(r.Remediation) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "  Remediation")
		fmt.Fprintln(stdout, "  "+strings.Repeat("─", 35))
		for _, step := range r.Remediation {
			fmt.Fprintf(stdout, "  - %s\n", step)
		}
	}
	fmt.Fprintln(stdout)
}

func severityIndicator(s diagnostics.Severity) string {
	switch s {
	case diagnostics.SeverityOK:
		return "✅" // green check
	case diagnostics.SeverityInfo:
		return "ℹ️" // info
	case diagnostics.SeverityWarning:
		return "⚠️" // warning
	default:
		return "❌" // red X
	}
}
