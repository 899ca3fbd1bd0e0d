package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"adsposter/internal/app"
	"adsposter/internal/poster"
)

var runFlags struct {
	profile   string
	context   string
	model     string
	schedule  []string
	imagesMin int
	imagesMax int
	delayMin  int
	delayMax  int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one run in the foreground; Ctrl-C stops it",
	Example: `  adsposter run -p k1abc --context "spring sale" \
    --schedule "3/7/2025 09:00" --schedule "3/7/2025 18:30"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		req, err := cliRequest()
		if err != nil {
			return err
		}

		a, err := app.New(cfgPath, app.Options{Headless: true})
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := a.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer scancel()
			_ = a.Stop(sctx, app.StopRunDone)
		}()

		// The first signal stops the run at its next safe point.
		go func() {
			<-ctx.Done()
			if res := a.Manager().Stop(); res.Success {
				fmt.Fprintln(cmd.ErrOrStderr(), "stopping:", res.Message)
			}
		}()

		rep, err := a.Manager().Start(context.WithoutCancel(ctx), a.Prepare(req))
		out := cmd.OutOrStdout()
		for _, j := range rep.Jobs {
			line := fmt.Sprintf("job %d: %s", j.Index+1, j.Outcome)
			if j.ScheduledAt != "" {
				line += " for " + j.ScheduledAt
			}
			if j.Error != "" {
				line += " (" + j.Error + ")"
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintf(out, "%d published, %d scheduled, %d skipped", rep.Published, rep.Scheduled, rep.Skipped)
		if rep.Cancelled {
			fmt.Fprint(out, ", stopped by request")
		}
		fmt.Fprintln(out)
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.profile, "profile", "p", "", "AdsPower profile id (default: $ADSPOWER_USER_ID or adspower.user_id)")
	f.StringVar(&runFlags.context, "context", "", "topic hint for generated post text")
	f.StringVar(&runFlags.model, "model", "", "content model override")
	f.StringArrayVar(&runFlags.schedule, "schedule", nil, `deferred publish "M/D/YYYY HH:MM" (repeatable; omit to publish now)`)
	f.IntVar(&runFlags.imagesMin, "images-min", 0, "minimum images per post")
	f.IntVar(&runFlags.imagesMax, "images-max", 0, "maximum images per post")
	f.IntVar(&runFlags.delayMin, "delay-min", 0, "minimum pause between posts, in pacing units")
	f.IntVar(&runFlags.delayMax, "delay-max", 0, "maximum pause between posts, in pacing units")
}

func cliRequest() (poster.Request, error) {
	req := poster.Request{
		Identity: strings.TrimSpace(runFlags.profile),
		Context:  runFlags.context,
		Model:    runFlags.model,
		Source:   "cli",
		Settings: poster.PacingSettings{
			ImagesMin: runFlags.imagesMin,
			ImagesMax: runFlags.imagesMax,
			DelayMin:  runFlags.delayMin,
			DelayMax:  runFlags.delayMax,
		},
	}
	for _, s := range runFlags.schedule {
		date, tm, ok := strings.Cut(strings.TrimSpace(s), " ")
		if !ok {
			return req, fmt.Errorf("--schedule %q: want \"<date> <time>\"", s)
		}
		e := poster.ScheduleEntry{Date: date, Time: strings.TrimSpace(tm)}
		if _, err := poster.EncodeSchedule(e); err != nil {
			return req, fmt.Errorf("--schedule %q: %w", s, err)
		}
		req.Schedule = append(req.Schedule, e)
	}
	return req, nil
}
