package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/classifier"
	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/reconciler"
	"github.com/EricW9888/ScreenGuardian/internal/report"
	"github.com/EricW9888/ScreenGuardian/internal/service"

	"go.uber.org/zap"
)

// oneShot runs a command that needs storage but not a long-running pipeline.
func oneShot(ctx context.Context, command string, cfg *config.Config, args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	var run func(context.Context, *service.GuardianService) error

	switch command {
	case "calibrate":
		cardPx := fs.Float64("card-px", 0, "observed card width in pixels at the calibration distance")
		neutral := fs.Bool("neutral", false, "capture the current pose as the upright baseline")
		wait := fs.Duration("wait", 15*time.Second, "how long to look for a usable pose")
		run = func(ctx context.Context, svc *service.GuardianService) error {
			return calibrate(ctx, svc, *cardPx, *neutral, *wait)
		}
	case "report":
		period := fs.String("period", "week", "day, week, month or year")
		date := fs.String("date", "", "reference date (YYYY-MM-DD), default today")
		out := fs.String("out", "", "write an .xlsx workbook to this path")
		run = func(ctx context.Context, svc *service.GuardianService) error {
			return printReport(ctx, svc, *period, *date, *out)
		}
	case "erase":
		includeCalibration := fs.Bool("include-calibration", false, "also delete the calibration profile")
		yes := fs.Bool("yes", false, "confirm the erase")
		run = func(ctx context.Context, svc *service.GuardianService) error {
			return erase(ctx, svc, *includeCalibration, *yes)
		}
	case "repair":
		run = func(context.Context, *service.GuardianService) error { return nil }
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, err := service.NewGuardianService(ctx, config.NewStore(cfg), log, service.SourceOptions{})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Stop()

	if err := svc.Init(ctx); err != nil {
		return err
	}
	return run(ctx, svc)
}

func calibrate(ctx context.Context, svc *service.GuardianService, cardPx float64, neutral bool, wait time.Duration) error {
	if cardPx <= 0 && !neutral {
		return errors.New("nothing to do: pass -card-px and/or -neutral")
	}
	if cardPx > 0 {
		profile, err := svc.CalibrateFromCard(ctx, cardPx)
		if err != nil {
			return err
		}
		fmt.Printf("calibrated: reference width %.1f px\n", profile.ReferencePixelWidth)
	}
	if !neutral {
		return nil
	}

	runCtx, stop := context.WithTimeout(ctx, wait)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- svc.Start(runCtx) }()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			return errors.New("no usable pose seen, sit upright facing the camera and retry")
		case <-ticker.C:
			pose, err := svc.CaptureNeutral(ctx)
			if errors.Is(err, service.ErrNoLandmarks) || errors.Is(err, classifier.ErrMissingLandmarks) {
				continue
			}
			stop()
			<-done
			if err != nil {
				return err
			}
			fmt.Printf("neutral pose stored: vertical %.3f depth %.3f tilt %.1f°\n",
				pose.VerticalRatio, pose.DepthRatio, pose.EyeTiltDeg)
			return nil
		}
	}
}

func printReport(ctx context.Context, svc *service.GuardianService, periodName, date, out string) error {
	p, err := report.ParsePeriod(periodName)
	if err != nil {
		return err
	}
	ref := time.Now()
	if date != "" {
		if ref, err = time.ParseInLocation(models.DateLayout, date, time.Local); err != nil {
			return fmt.Errorf("invalid date %q: %w", date, err)
		}
	}

	if out != "" {
		data, err := svc.ExportReport(ctx, p, ref)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("report written to %s\n", out)
		return nil
	}

	m, err := svc.Summarize(ctx, p, ref)
	if err != nil {
		return err
	}
	cur := m.Current
	fmt.Printf("%s %s..%s\n", m.Period, cur.Range.From(), cur.Range.To())
	fmt.Printf("  screen time   %s\n", (time.Duration(cur.Totals.ScreenTimeSeconds) * time.Second).String())
	fmt.Printf("  good posture  %.1f%%\n", cur.PosturePercent())
	if mean, ok := cur.Totals.MeanDistanceCM(); ok {
		fmt.Printf("  mean distance %.1f cm\n", mean)
	}
	if change, ok := m.ScreenTimeChangePercent(); ok {
		fmt.Printf("  vs previous   %+.1f%%\n", change)
	}

	kinds := make([]string, 0, len(cur.Alerts))
	for k := range cur.Alerts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-22s %d\n", k, cur.Alerts[models.AlertKind(k)])
	}
	return nil
}

func erase(ctx context.Context, svc *service.GuardianService, includeCalibration, yes bool) error {
	scope := reconciler.EraseScope{IncludeCalibration: includeCalibration}
	if !yes {
		fmt.Println("This deletes every alert and usage record permanently.")
		if includeCalibration {
			fmt.Println("The calibration profile will be deleted as well.")
		}
		fmt.Println("Re-run with -yes to confirm.")
		return nil
	}

	svc.ArmErase(scope)
	result, err := svc.ConfirmErase(ctx)
	if err != nil {
		return err
	}
	for table, n := range result.Deleted {
		fmt.Printf("deleted %d rows from %s\n", n, table)
	}
	return nil
}
