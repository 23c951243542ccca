// Package main runs the daily summary rollup. It recomputes the
// daily_view_summaries table from raw view events for a date window and is
// intended to run on a schedule (for example a nightly cron).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blogpulse/blogpulse/internal/config"
	"github.com/blogpulse/blogpulse/internal/repository"
)

func main() {
	var (
		days = flag.Int("days", 2, "number of trailing days to rebuild")
		from = flag.String("from", "", "rebuild window start (YYYY-MM-DD, overrides -days)")
		to   = flag.String("to", "", "rebuild window end, exclusive (YYYY-MM-DD)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	start, end, err := resolveWindow(*days, *from, *to, time.Now().UTC())
	if err != nil {
		logger.Error("invalid rollup window", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	summaries := repository.NewSummaryRepository(repo)

	logger.Info("rebuilding daily summaries",
		"from", start.Format("2006-01-02"),
		"to", end.Format("2006-01-02"),
	)

	rows, err := summaries.Rebuild(ctx, start, end)
	if err != nil {
		logger.Error("rollup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("rollup complete", "rows", rows)
}

// resolveWindow turns the flags into a [start, end) window. With no explicit
// dates the window covers the trailing -days days up to tomorrow, so today's
// partial day is always included.
func resolveWindow(days int, from, to string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if from == "" && to == "" {
		if days <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("days must be positive, got %d", days)
		}
		return today.AddDate(0, 0, -(days - 1)), today.AddDate(0, 0, 1), nil
	}

	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -from date %q: %w", from, err)
	}

	end := today.AddDate(0, 0, 1)
	if to != "" {
		end, err = time.Parse("2006-01-02", to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -to date %q: %w", to, err)
		}
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s is not after start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return start, end, nil
}
