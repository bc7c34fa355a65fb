package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sinulogmap/internal/config"
	"sinulogmap/internal/directions"
	"sinulogmap/internal/ics"
	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/metrics"
	"sinulogmap/internal/ratelimit"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/session"
	"sinulogmap/internal/source"
	"sinulogmap/internal/venue"
	"sinulogmap/internal/web"
)

// app is the wired service.
type app struct {
	handler  http.Handler
	sessions *session.Manager
}

func newApp(ctx context.Context, conf *config.Config) (*app, error) {
	fetcher := source.NewFetcher(conf.CacheDir, 30*time.Second)

	store, err := loadStore(ctx, fetcher, conf)
	if err != nil {
		return nil, err
	}
	dir := venue.New(conf.Venues, conf.Aliases)
	appLog.Info("schedule loaded", "dates", len(store.Dates()), "events", store.Len(), "venues", dir.Len())

	m := metrics.New()

	var router directions.Router = directions.NewClient(conf.Directions.Endpoint, conf.MapsAPIKey, conf.DirectionsTimeout())
	var limiter *ratelimit.Keyed
	if conf.Directions.RatePerSecond > 0 {
		limiter = ratelimit.New(conf.Directions.RatePerSecond, conf.Directions.Burst)
		router = directions.Throttled{Router: router, Limiter: limiter}
	}

	sessions := session.NewManager(store, dir, session.Options{
		DefaultDate: conf.DefaultDate,
		TravelMode:  directions.ParseTravelMode(conf.Directions.TravelMode),
	}, conf.SessionIdle())
	sessions.OnEvict(func(id string) {
		if limiter != nil {
			limiter.Forget(id)
		}
		m.Evicted()
		m.Sessions(sessions.Len())
	})
	if err := sessions.Start(conf.Session.Sweep); err != nil {
		return nil, err
	}

	srv := web.NewServer(web.Deps{
		Config:   conf,
		Store:    store,
		Dir:      dir,
		Sessions: sessions,
		Router:   router,
		Exporter: ics.NewExporter(store, dir, conf.Location()),
		Metrics:  m,
	})
	return &app{handler: srv.Handler(), sessions: sessions}, nil
}

// loadStore reads the schedule document and merges any configured
// calendar imports into it. A calendar that fails to load is skipped.
func loadStore(ctx context.Context, fetcher *source.Fetcher, conf *config.Config) (*schedule.Store, error) {
	res, err := fetcher.Load(ctx, conf.ScheduleFile)
	if err != nil {
		return nil, fmt.Errorf("load schedule %s: %w", source.RedactURL(conf.ScheduleFile), err)
	}
	if res.FromCache {
		appLog.Warn("using cached schedule", "source", source.RedactURL(conf.ScheduleFile))
	}
	store, err := schedule.Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", source.RedactURL(conf.ScheduleFile), err)
	}

	for _, loc := range conf.ImportICS {
		res, err := fetcher.Load(ctx, loc)
		if err != nil {
			appLog.Warn("calendar import skipped", "source", source.RedactURL(loc), "err", err)
			continue
		}
		extra, err := ics.Import(res.Body, conf.Location())
		if err != nil {
			appLog.Warn("calendar import skipped", "source", source.RedactURL(loc), "err", err)
			continue
		}
		merged, err := schedule.Merge(store, extra)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", source.RedactURL(loc), err)
		}
		store = merged
	}
	return store, nil
}

func (a *app) close() {
	<-a.sessions.Stop().Done()
}
