// Command researchctl submits research jobs, follows their progress and
// fetches their results from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/trialscope/internal/config"
	"github.com/kiranshivaraju/trialscope/internal/lifecycle"
	"github.com/kiranshivaraju/trialscope/internal/poller"
	"github.com/kiranshivaraju/trialscope/internal/progress"
	"github.com/kiranshivaraju/trialscope/internal/report"
	"github.com/kiranshivaraju/trialscope/internal/research"
	"github.com/kiranshivaraju/trialscope/internal/research/mock"
	"github.com/kiranshivaraju/trialscope/pkg/apipath"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

const usage = `usage: researchctl [-offline] [-interval d] <command> [flags]

commands:
  submit   -molecule M [-prompt P] [-watch]   create a research job
  watch    JOB_ID...                          follow jobs until they finish
  history                                     list past jobs
  report   [-json] [-xlsx FILE] JOB_ID        print a completed job's report
  download [-type pdf|ppt] [-out FILE] JOB_ID save a generated artifact
`

const offlineJobID = "offline-job"

var errUsage = errors.New("invalid usage")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	ctrl *lifecycle.Controller
	out  io.Writer
	err  io.Writer

	mu sync.Mutex // serializes progress lines from concurrent watches
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("researchctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	offline := fs.Bool("offline", false, "use a scripted in-memory backend")
	interval := fs.Duration("interval", 0, "poll interval (default from POLL_INTERVAL)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	client, pollCfg, err := newClient(*offline)
	if err != nil {
		return err
	}
	if *interval > 0 {
		pollCfg.Interval = *interval
	}

	p := poller.New(client,
		poller.WithInterval(pollCfg.Interval),
		poller.WithDegradedAfter(pollCfg.DegradedAfter),
		poller.WithMaxConsecutiveFailures(pollCfg.MaxConsecutiveFailures),
	)
	a := &app{
		ctrl: lifecycle.New(client, lifecycle.WithPoller(p)),
		out:  stdout,
		err:  stderr,
	}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

// newClient returns the backend client and poll settings. Offline mode needs
// no configuration at all.
func newClient(offline bool) (research.Client, config.PollConfig, error) {
	if offline {
		return mock.NewScriptedClient(offlineJobID,
				mock.Step{Status: models.StatusQueued},
				mock.Step{Status: models.StatusRunning},
				mock.Step{Status: models.StatusGeneratingReport},
				mock.Step{Status: models.StatusCompleted, Result: mock.SampleResult("CardioFlow-7")},
			), config.PollConfig{
				Interval:      200 * time.Millisecond,
				DegradedAfter: poller.DefaultDegradedAfter,
			}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, config.PollConfig{}, fmt.Errorf("load config: %w", err)
	}
	client := research.NewHTTPClient(
		cfg.Research.BaseURL,
		cfg.Research.APIKeyHeader,
		cfg.Research.APIKey,
		cfg.Research.Timeout,
	)
	return client, cfg.Poll, nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "submit":
		return a.submit(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	case "history":
		return a.history(ctx)
	case "report":
		return a.report(ctx, args)
	case "download":
		return a.download(ctx, args)
	default:
		fmt.Fprintf(a.err, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

func (a *app) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(a.err)
	molecule := fs.String("molecule", "", "molecule to research")
	prompt := fs.String("prompt", "", "optional free-text instructions")
	watch := fs.Bool("watch", false, "follow the job until it finishes")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	jobID, err := a.ctrl.Submit(ctx, *molecule, *prompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, jobID)

	if !*watch {
		return nil
	}
	return a.watch(ctx, []string{jobID})
}

// watch follows every job concurrently and fails if any of them failed.
func (a *app) watch(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		fmt.Fprint(a.err, "watch needs at least one job id\n")
		return errUsage
	}

	var g errgroup.Group
	for _, id := range jobIDs {
		g.Go(func() error {
			return a.watchOne(ctx, id)
		})
	}
	return g.Wait()
}

func (a *app) watchOne(ctx context.Context, jobID string) error {
	var final *report.Report
	h := a.ctrl.Watch(ctx, jobID, func(u lifecycle.Update) {
		a.printUpdate(u)
		if u.Report != nil {
			final = u.Report
		}
	})
	defer h.Stop()

	last, err := h.Wait(ctx)
	if err != nil {
		return fmt.Errorf("watching %s: %w", jobID, err)
	}
	// The loop has exited, so final is no longer written.
	switch {
	case last.Status == models.StatusFailed:
		return fmt.Errorf("job %s: %w", jobID, lifecycle.ErrJobFailed)
	case errors.Is(last.Err, poller.ErrTooManyFailures):
		return fmt.Errorf("job %s: %w", jobID, last.Err)
	case final != nil:
		a.mu.Lock()
		printReport(a.out, final)
		a.mu.Unlock()
	}
	return nil
}

func (a *app) printUpdate(u lifecycle.Update) {
	a.mu.Lock()
	defer a.mu.Unlock()

	line := fmt.Sprintf("%s  %-17s %3d%%  %s", u.Observation.JobID, u.Observation.Status, u.Progress.Percent, renderSteps(u.Progress.Steps))
	if u.Observation.Degraded {
		line += "  (backend unreachable, retrying)"
	}
	fmt.Fprintln(a.out, line)
	if u.Progress.Message != "" {
		fmt.Fprintf(a.out, "%s  %s\n", u.Observation.JobID, u.Progress.Message)
	}
}

func renderSteps(steps []progress.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		mark := " "
		switch s.State {
		case progress.StateActive:
			mark = ">"
		case progress.StateCompleted:
			mark = "x"
		}
		parts[i] = fmt.Sprintf("[%s] %s", mark, s.Label)
	}
	return strings.Join(parts, "  ")
}

func (a *app) history(ctx context.Context) error {
	listing := a.ctrl.History(ctx)
	if listing.Degraded {
		fmt.Fprintln(a.err, "warning: job history is temporarily unavailable")
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tMOLECULE\tSTATUS\tCREATED")
	for _, j := range listing.Jobs {
		created := "-"
		if !j.CreatedAt.IsZero() {
			created = j.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.Molecule, j.Status, created)
	}
	return tw.Flush()
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(a.err)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	xlsxPath := fs.String("xlsx", "", "also write the trials workbook to this file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprint(a.err, "report needs exactly one job id\n")
		return errUsage
	}
	jobID := fs.Arg(0)

	rep, err := a.ctrl.Report(ctx, jobID)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printReport(a.out, rep)
	}

	if *xlsxPath != "" {
		data, err := a.ctrl.TrialsXLSX(ctx, jobID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*xlsxPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", *xlsxPath, err)
		}
		fmt.Fprintf(a.err, "wrote %s\n", *xlsxPath)
	}
	return nil
}

func printReport(w io.Writer, r *report.Report) {
	fmt.Fprintf(w, "\n%s (job %s)\n", r.Molecule, r.JobID)
	fmt.Fprintf(w, "confidence %d%%  completeness %d%%  trials %d\n",
		r.ConfidencePercent, r.CompletenessPercent, r.TrialCount)

	for _, p := range r.SummaryParagraphs {
		fmt.Fprintf(w, "\n%s\n", p)
	}
	if r.HasTrials {
		fmt.Fprintf(w, "\nby status: %s\n", renderBuckets(r.StatusHistogram))
		fmt.Fprintf(w, "by phase:  %s\n", renderBuckets(r.PhaseHistogram))
	}
	printList(w, "Key findings", r.KeyFindings)
	printList(w, "Suggested follow-up", r.FollowUp)
	if r.RiskAssessment != "" {
		fmt.Fprintf(w, "\nRisk assessment\n  %s\n", r.RiskAssessment)
	}
	if len(r.Downloads) > 0 {
		fmt.Fprintln(w, "\nDownloads")
		for _, d := range r.Downloads {
			fmt.Fprintf(w, "  %-4s %s\n", d.Kind, d.URL)
		}
	}
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func renderBuckets(buckets []report.Bucket) string {
	parts := make([]string, len(buckets))
	for i, b := range buckets {
		parts[i] = fmt.Sprintf("%s=%d", b.Name, b.Value)
	}
	return strings.Join(parts, ", ")
}

func (a *app) download(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(a.err)
	kind := fs.String("type", apipath.ArtifactPDF, "artifact type: pdf or ppt")
	out := fs.String("out", "", "destination file (default: backend filename)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprint(a.err, "download needs exactly one job id\n")
		return errUsage
	}

	artifact, err := a.ctrl.Download(ctx, fs.Arg(0), *kind)
	if err != nil {
		return err
	}
	defer artifact.Body.Close()

	path := *out
	if path == "" {
		path = artifact.Filename
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := io.Copy(f, artifact.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}

	fmt.Fprintf(a.err, "wrote %s (%d bytes)\n", path, n)
	return nil
}
