// Package jobs runs periodic maintenance: overdue loan reminders, expiring
// produce alerts and revoked-token cleanup.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/notify"
	"github.com/erazemk/kmetija/internal/store"
)

// Schedule holds cron specs for each job. Specs accept an optional seconds
// field and descriptors such as "@hourly".
type Schedule struct {
	Overdue  string
	Expiring string
	Purge    string
}

// DefaultSchedule is used for empty Schedule fields.
var DefaultSchedule = Schedule{
	Overdue:  "0 0 7 * * *",
	Expiring: "0 30 6 * * *",
	Purge:    "@hourly",
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Runner holds what the jobs need.
type Runner struct {
	DB           *sql.DB
	Notifier     *notify.Notifier
	ExpiryWindow int // days
	Location     *time.Location
	Now          func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) today() model.Date {
	t := r.now()
	if r.Location != nil {
		t = t.In(r.Location)
	}
	return model.NewDate(t)
}

// Run schedules the jobs and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (r *Runner) Run(ctx context.Context, sched Schedule) error {
	c, err := r.scheduler(ctx, sched)
	if err != nil {
		return err
	}
	c.Start()
	slog.Info("scheduler started", "jobs", len(c.Entries()))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler stopped")
	return nil
}

func (r *Runner) scheduler(ctx context.Context, sched Schedule) (*cron.Cron, error) {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	jobs := []struct {
		name string
		spec string
		def  string
		run  func(context.Context) (int64, error)
	}{
		{"overdue", sched.Overdue, DefaultSchedule.Overdue, r.CheckOverdue},
		{"expiring", sched.Expiring, DefaultSchedule.Expiring, r.CheckExpiring},
		{"purge_tokens", sched.Purge, DefaultSchedule.Purge, r.PurgeTokens},
	}
	for _, j := range jobs {
		spec := j.spec
		if spec == "" {
			spec = j.def
		}
		_, err := c.AddFunc(spec, func() {
			n, err := j.run(ctx)
			if err != nil {
				slog.Error("job failed", "job", j.name, "error", err)
				return
			}
			if n > 0 {
				slog.Info("job finished", "job", j.name, "count", n)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("scheduling %s job %q: %w", j.name, spec, err)
		}
	}
	return c, nil
}

// CheckOverdue notifies borrower and owner once for every accepted loan
// whose end date has passed.
func (r *Runner) CheckOverdue(ctx context.Context) (int64, error) {
	loans, err := store.ListOverdueBorrows(ctx, r.DB, r.today())
	if err != nil {
		return 0, err
	}

	var sent int64
	for _, loan := range loans {
		id := loan.ID
		msg := fmt.Sprintf("%s was due back on %s.", loan.EquipmentName, loan.EndDate)
		for _, userID := range []int64{loan.BorrowerID, loan.OwnerID} {
			if _, err := r.Notifier.Notify(ctx, userID, model.NotifyBorrowOverdue, "Loan overdue", msg, &id); err != nil {
				return sent, fmt.Errorf("notifying overdue loan %d: %w", id, err)
			}
		}
		if err := store.MarkOverdueNotified(ctx, r.DB, id); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// CheckExpiring alerts owners once about inventory expiring within the
// configured window.
func (r *Runner) CheckExpiring(ctx context.Context) (int64, error) {
	window := max(r.ExpiryWindow, 0)
	before := model.NewDate(r.today().AddDate(0, 0, window))

	items, err := store.ListExpiringItems(ctx, r.DB, before)
	if err != nil {
		return 0, err
	}

	var sent int64
	for _, item := range items {
		id := item.ID
		msg := fmt.Sprintf("%g %s of %s expires on %s.", item.Quantity, item.Unit, item.Name, item.ExpiryDate)
		if _, err := r.Notifier.Notify(ctx, item.OwnerID, model.NotifyInventoryExpiring, "Produce expiring", msg, &id); err != nil {
			return sent, fmt.Errorf("notifying expiring item %d: %w", id, err)
		}
		if err := store.MarkExpiryNotified(ctx, r.DB, id); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// PurgeTokens deletes revocations of tokens that have expired anyway.
func (r *Runner) PurgeTokens(ctx context.Context) (int64, error) {
	return store.PurgeRevokedTokens(ctx, r.DB, r.now())
}
