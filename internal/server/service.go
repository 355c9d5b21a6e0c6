package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/unkn0wn-root/tally"
	"github.com/unkn0wn-root/tally/codec"
	"github.com/unkn0wn-root/tally/gateway"
	"github.com/unkn0wn-root/tally/genstore"
	"github.com/unkn0wn-root/tally/internal/models"
	tallyzap "github.com/unkn0wn-root/tally/log/zap"
	"github.com/unkn0wn-root/tally/readmodel"
)

// profileCounter ties a counter name to its column and Profile field.
type profileCounter struct {
	Name   string
	Column string
	field  func(*models.Profile) *int64
}

var profileCounters = []profileCounter{
	{Name: "followers", Column: "follower_count", field: func(p *models.Profile) *int64 { return &p.FollowerCount }},
	{Name: "responses", Column: "response_count", field: func(p *models.Profile) *int64 { return &p.ResponseCount }},
	{Name: "unread", Column: "unread_count", field: func(p *models.Profile) *int64 { return &p.UnreadCount }},
}

// Deps are the long-lived pieces the HTTP service is built from.
type Deps struct {
	DB       *gorm.DB
	Cache    *tally.Cache
	Gens     genstore.Store
	Keyspace tally.Keyspace
	Hooks    tally.Hooks // optional

	Codec     string // read-model codec name, see codec.ByName
	MaxDecode int

	// MetricsPath enables the Prometheus endpoint when non-empty.
	MetricsPath string
	Gatherer    prometheus.Gatherer // defaults to prometheus.DefaultGatherer

	// Checks run on /healthz in addition to the database.
	Checks map[string]func(context.Context) error

	Log *zap.Logger
}

// Service serves counters and profiles. Counter writes go to the cache only;
// durable rows change through reconciliation and the gateway.
type Service struct {
	db       *gorm.DB
	rec      *tally.Reconciler
	profiles *readmodel.Cache[models.Profile]
	gw       *gateway.Gateway

	metricsPath string
	gatherer    prometheus.Gatherer
	checks      map[string]func(context.Context) error
	log         *zap.Logger
}

func New(d Deps) (*Service, error) {
	if d.DB == nil || d.Cache == nil || d.Gens == nil {
		return nil, errors.New("server: db, cache and generation store are required")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	libLog := tallyzap.New(d.Log)

	c, err := codec.ByName[models.Profile](d.Codec)
	if err != nil {
		return nil, err
	}
	profiles, err := readmodel.New(readmodel.Options[models.Profile]{
		Cache:     d.Cache,
		Gens:      d.Gens,
		Codec:     c,
		Keyspace:  d.Keyspace,
		Subsystem: "profiles",
		MaxDecode: d.MaxDecode,
		Logger:    libLog,
		Hooks:     d.Hooks,
	})
	if err != nil {
		return nil, fmt.Errorf("profile read-model: %w", err)
	}

	columns := make([]string, 0, len(profileCounters))
	for _, pc := range profileCounters {
		columns = append(columns, pc.Column)
	}
	gw, err := gateway.New(gateway.Config{
		DB:          d.DB,
		Table:       models.Profile{}.TableName(),
		Columns:     columns,
		Invalidator: profiles,
		Logger:      libLog,
	})
	if err != nil {
		return nil, err
	}

	counters := make([]tally.Counter, 0, len(profileCounters))
	for _, pc := range profileCounters {
		counters = append(counters, gw.Counter(pc.Name, pc.Column))
	}
	rec, err := tally.NewReconciler(tally.ReconcilerOptions{
		Cache:    d.Cache,
		Keyspace: d.Keyspace,
		Counters: counters,
		Logger:   libLog,
		Hooks:    d.Hooks,
	})
	if err != nil {
		return nil, err
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Service{
		db:          d.DB,
		rec:         rec,
		profiles:    profiles,
		gw:          gw,
		metricsPath: d.MetricsPath,
		gatherer:    gatherer,
		checks:      d.Checks,
		log:         d.Log,
	}, nil
}

// Reconciler exposes the counter reconciler, e.g. for background jobs.
func (s *Service) Reconciler() *tally.Reconciler { return s.rec }

// loadProfile reads the durable row.
func (s *Service) loadProfile(ctx context.Context, id string) (models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("%w: profiles %q", gateway.ErrRowNotFound, id)
	}
	return p, err
}

// profile returns the read-model of id with every counter reconciled against
// its live column. The cached view may predate an out-of-band row update, so
// its counter values are never used as the row side. A failed write-back
// still reports the winner.
func (s *Service) profile(ctx context.Context, id string) (models.Profile, error) {
	p, err := s.profiles.GetOrLoad(ctx, id, func(ctx context.Context) (models.Profile, error) {
		return s.loadProfile(ctx, id)
	})
	if err != nil {
		return p, err
	}
	for _, pc := range profileCounters {
		f := pc.field(&p)
		res, err := s.rec.Refresh(ctx, pc.Name, id)
		var wb *tally.WriteBackError
		switch {
		case err == nil, errors.As(err, &wb):
			*f = res.Value
		default:
			return p, err
		}
	}
	return p, nil
}

// forget drops every cached trace of a profile.
func (s *Service) forget(ctx context.Context, id string) error {
	err := s.profiles.Invalidate(ctx, id)
	if !s.rec.Forget(ctx, id) {
		s.log.Warn("counter keys not removed", zap.String("id", id))
	}
	return err
}
