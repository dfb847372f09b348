package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/scranton_condor/internal/config"
)

// simClock is the engine clock during a replayed session.
type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time { return c.now }

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay one session against the paper venue on a simulated clock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			if !cfg.IsPaperTrading() {
				return fmt.Errorf("simulate requires environment.mode: paper")
			}
			dateFlag, err := cmd.Flags().GetString("date")
			if err != nil {
				return err
			}
			step, err := cmd.Flags().GetDuration("step")
			if err != nil {
				return err
			}

			logger := setupLogger(cfg)
			session, err := cfg.Session()
			if err != nil {
				return err
			}
			day := time.Now().In(session.Location())
			if dateFlag != "" {
				if day, err = time.ParseInLocation("2006-01-02", dateFlag, session.Location()); err != nil {
					return fmt.Errorf("parsing --date: %w", err)
				}
			}

			bot, err := simulateSession(cmd.Context(), cfg, logger, day, step)
			if err != nil {
				return err
			}
			defer func() {
				if err := bot.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close storage")
				}
			}()
			bot.portfolio.WriteReport(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().String("date", "", "Session date to replay, YYYY-MM-DD in the session timezone (default today)")
	cmd.Flags().Duration("step", 0, "Simulated time between ticks (default schedule.tick_interval)")
	return cmd
}

// simulateSession runs every tick of day's session, applying venue events after each step and
// firing the failsafe at its scheduled time, then flushes records. The returned bot still owns
// its sink.
func simulateSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger, day time.Time,
	step time.Duration,
) (*Bot, error) {
	session, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	if !session.IsTradingDay(day) {
		return nil, fmt.Errorf("%s is not a trading day", session.DayKey(day))
	}
	if step <= 0 {
		step = cfg.GetTickInterval()
	}

	open, closeAt := session.Open(day), session.Close(day)
	failsafeAt := closeAt
	if cfg.Schedule.FailsafeCron != "" {
		sched, err := cron.ParseStandard(cfg.Schedule.FailsafeCron)
		if err != nil {
			return nil, fmt.Errorf("parsing failsafe schedule: %w", err)
		}
		failsafeAt = sched.Next(open)
	}

	clock := &simClock{now: open}
	bot, err := newBot(cfg, logger, clock.Now)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"day":      session.DayKey(day),
		"step":     step,
		"failsafe": failsafeAt.Format("15:04"),
	}).Info("Replaying session")

	failsafeDone := false
	for t := open; t.Before(closeAt); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			_ = bot.Close()
			return nil, err
		}
		clock.now = t
		bot.data.Step()
		bot.cycle.Tick(ctx, t)
		bot.drainEvents(ctx)

		if !failsafeDone && !t.Before(failsafeAt) {
			bot.cycle.PreClose(ctx, t)
			bot.drainEvents(ctx)
			failsafeDone = true
		}
	}
	// the step may jump past the failsafe time on the last tick
	if !failsafeDone && failsafeAt.Before(closeAt) {
		clock.now = failsafeAt
		bot.cycle.PreClose(ctx, failsafeAt)
		bot.drainEvents(ctx)
	}

	if err := bot.Flush(ctx); err != nil {
		_ = bot.Close()
		return nil, err
	}
	return bot, nil
}

// drainEvents applies every venue event already queued.
func (b *Bot) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-b.events:
			b.cycle.HandleEvent(ctx, ev)
		default:
			return
		}
	}
}
