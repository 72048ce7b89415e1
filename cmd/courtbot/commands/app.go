package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"courtbot/internal/calendar"
	"courtbot/internal/config"
	"courtbot/internal/conversation"
	"courtbot/internal/db"
	"courtbot/internal/hearing"
	"courtbot/internal/jobs"
	"courtbot/internal/lock"
	"courtbot/internal/logging"
	"courtbot/internal/message"
	"courtbot/internal/notify"
	"courtbot/internal/phone"
	"courtbot/internal/request"
	"courtbot/internal/sweep"
)

const (
	jobIngest = "INGEST"
	jobCycle  = "CYCLE"
)

// app holds the process-wide collaborators. Every failure in newApp is a
// startup failure: nothing runs with a missing key or database.
type app struct {
	cfg        config.Config
	db         *gorm.DB
	cipher     *phone.Cipher
	renderer   *message.Renderer
	dispatcher *notify.Dispatcher
	locker     lock.Locker
	closers    []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(ctx, cfg)
}

func newAppFromConfig(ctx context.Context, cfg config.Config) (*app, error) {
	cipher, err := phone.NewCipher(cfg.PhoneKey)
	if err != nil {
		return nil, fmt.Errorf("PHONE_ENCRYPTION_KEY: %w", err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &app{cfg: cfg, db: gdb, cipher: cipher}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	loc, err := cfg.Court.Location()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("court time zone: %w", err)
	}
	a.renderer, err = message.NewRenderer(message.Config{
		Court:     cfg.Court.Name,
		CourtURL:  cfg.Court.URL,
		Location:  loc,
		TTLDays:   cfg.QueueTTLDays,
		Templates: cfg.Court.Templates,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("court templates: %w", err)
	}

	var messenger notify.Messenger = notify.LogMessenger{}
	if cfg.TwilioAccountSID != "" {
		messenger = notify.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	} else {
		logging.Warn(ctx, "no Twilio account configured; messages are logged, not sent")
	}
	a.dispatcher = &notify.Dispatcher{
		DB:          gdb,
		Cipher:      cipher,
		Messenger:   messenger,
		Renderer:    a.renderer,
		From:        cfg.TwilioPhoneNumber,
		SendTimeout: cfg.SendTimeout,
	}

	if cfg.RedisURL != "" {
		rl, err := lock.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.locker = rl
		a.closers = append(a.closers, rl.Close)
	} else {
		a.locker = lock.NewLocal()
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func (a *app) hearings() *hearing.Store { return &hearing.Store{DB: a.db} }

func (a *app) ingester() (*calendar.Ingester, error) {
	n, err := calendar.NewNormalizer(a.cfg.Court.Layout)
	if err != nil {
		return nil, err
	}
	return &calendar.Ingester{
		Sources:    &calendar.Sources{HTTP: &http.Client{Timeout: 2 * time.Minute}},
		Normalizer: n,
		Store:      a.hearings(),
	}, nil
}

func (a *app) cycle() *sweep.Cycle {
	ttl := time.Duration(a.cfg.QueueTTLDays) * 24 * time.Hour
	c := &sweep.Cycle{
		Matcher: &sweep.Matcher{
			DB: a.db, Hearings: a.hearings(), Dispatcher: a.dispatcher, Concurrency: a.cfg.SweepConcurrency,
		},
		Expirer: &sweep.Expirer{
			DB: a.db, Dispatcher: a.dispatcher, TTL: ttl, Concurrency: a.cfg.SweepConcurrency,
		},
		Reminder: &sweep.Reminder{
			DB: a.db, Dispatcher: a.dispatcher, Lead: a.cfg.ReminderLead, Concurrency: a.cfg.SweepConcurrency,
		},
	}
	if a.cfg.LegacyQueue {
		c.Queue = &sweep.QueueSweep{
			DB: a.db, Hearings: a.hearings(), Dispatcher: a.dispatcher, TTL: ttl, Concurrency: a.cfg.SweepConcurrency,
		}
	}
	return c
}

func (a *app) conversation() *conversation.Controller {
	return &conversation.Controller{
		DB:          a.db,
		Cipher:      a.cipher,
		Hearings:    a.hearings(),
		Requests:    &request.Store{DB: a.db},
		Renderer:    a.renderer,
		LegacyQueue: a.cfg.LegacyQueue,
	}
}

func (a *app) worker(typ string, task jobs.Task) *jobs.Worker {
	return &jobs.Worker{
		Type:     typ,
		Interval: a.cfg.RunInterval,
		Task:     task,
		Repo:     &jobs.Repo{DB: a.db},
		Locker:   a.locker,
	}
}

func (a *app) ingestTask(location string) jobs.Task {
	return func(ctx context.Context) (string, error) {
		if location == "" {
			return "", errors.New("no export location: pass one or set DATA_URL")
		}
		ing, err := a.ingester()
		if err != nil {
			return "", err
		}
		rep, err := ing.Run(ctx, location)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rows=%d cases=%d citations=%d unreadable=%d skipped=%v",
			rep.Rows, rep.Cases, rep.Citations, rep.Unreadable, rep.Skipped), nil
	}
}

func (a *app) cycleTask() jobs.Task {
	return func(ctx context.Context) (string, error) {
		rep, err := a.cycle().Run(ctx)
		return rep.Summary(), err
	}
}

// scheduledTask is what `run` repeats: refresh the hearings when an export
// location is configured, then run the notification cycle.
func (a *app) scheduledTask() jobs.Task {
	ingest, cycle := a.ingestTask(a.cfg.DataURL), a.cycleTask()
	return func(ctx context.Context) (string, error) {
		var summary string
		if a.cfg.DataURL != "" {
			s, err := ingest(ctx)
			if err != nil {
				return "", fmt.Errorf("ingest: %w", err)
			}
			summary = s + "; "
		} else {
			logging.Info(ctx, "DATA_URL not set; skipping ingest", slog.String("component", "scheduler"))
		}
		s, err := cycle(ctx)
		return summary + s, err
	}
}
