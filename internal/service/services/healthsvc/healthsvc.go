package healthsvc

import (
	"context"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	Healthy   = "healthy"
	unhealthy = "unhealthy: "
)

// Pinger is implemented by every probed dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the aggregated health of the service dependencies.
type Report struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
	RabbitMQ string `json:"rabbitmq"`
}

// HealthService probes the database, cache and broker concurrently.
type HealthService struct {
	database Pinger
	redis    Pinger
	rabbitmq Pinger
	timeout  time.Duration
}

type option func(*HealthService)

// MustNewHealthService creates a new HealthService.
func MustNewHealthService(opts ...option) *HealthService {
	timeout := time.Duration(viper.GetInt("health.timeout_ms")) * time.Millisecond
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	s := &HealthService{timeout: timeout}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithDatabase sets the database probe.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDatabase(p Pinger) option {
	return func(s *HealthService) {
		s.database = p
	}
}

// WithRedis sets the cache probe.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRedis(p Pinger) option {
	return func(s *HealthService) {
		s.redis = p
	}
}

// WithRabbitMQ sets the broker probe.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRabbitMQ(p Pinger) option {
	return func(s *HealthService) {
		s.rabbitmq = p
	}
}

// WithTimeout bounds each probe.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTimeout(d time.Duration) option {
	return func(s *HealthService) {
		s.timeout = d
	}
}

// Check runs all probes in parallel. Status is healthy only if every probe is.
func (s *HealthService) Check(ctx context.Context) Report {
	var report Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Database = s.probe(gctx, s.database)

		return nil
	})
	g.Go(func() error {
		report.Redis = s.probe(gctx, s.redis)

		return nil
	})
	g.Go(func() error {
		report.RabbitMQ = s.probe(gctx, s.rabbitmq)

		return nil
	})
	_ = g.Wait()

	report.Status = Healthy
	for _, sub := range []string{report.Database, report.Redis, report.RabbitMQ} {
		if sub != Healthy {
			report.Status = "unhealthy"

			break
		}
	}

	return report
}

func (s *HealthService) probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return unhealthy + "not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return unhealthy + err.Error()
	}

	return Healthy
}
