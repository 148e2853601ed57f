package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pricestate/config"
	"pricestate/internal/aggregator"
	"pricestate/internal/feed"
	"pricestate/internal/price"
	"pricestate/internal/schedule"
	"pricestate/internal/server"
	"pricestate/pkg/bybit"
	"pricestate/pkg/pricefeed"
	"pricestate/pkg/storage/postgres"
	"pricestate/pkg/stream"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	restTimeout    = 10 * time.Second
	bybitHeartbeat = 20 * time.Second
)

// Sources are the upstream streams the aggregator folds. Updates and Resets
// come from the same producer; ExternalResets fire on their own.
type Sources struct {
	Updates        stream.Source[price.Update]
	Resets         stream.Source[price.Reset]
	ExternalResets []stream.Source[price.Reset]
	feed           *feed.Feed
}

// BuildSources creates every configured update and reset source.
func BuildSources(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Sources, error) {
	var src Sources

	if cfg.Feed.Enabled {
		topics, err := feedTopics(ctx, cfg.Feed, logger)
		if err != nil {
			return nil, err
		}
		opts := pricefeed.Options{
			Topics:            topics,
			ReconnectInterval: cfg.Feed.ReconnectInterval,
			MaxReconnects:     cfg.Feed.MaxReconnects,
		}
		if cfg.Feed.Format == feed.FormatBybit {
			opts.Heartbeat = bybitHeartbeat
		}
		client := pricefeed.NewWSClient(cfg.Feed.URL, opts, logger.Named("feed"))
		src.feed, err = feed.New(client, cfg.Feed.Format, logger.Named("feed"))
		if err != nil {
			return nil, err
		}
		src.Updates = src.feed.Updates()
		src.Resets = src.feed.Resets()
	} else {
		// no price source: subjects nobody publishes to keep the streams open
		src.Updates = stream.NewSubject[price.Update]()
		src.Resets = stream.NewSubject[price.Reset]()
	}

	if cfg.Postgres.Enabled {
		dsn, err := cfg.Postgres.DSN(ctx, cfg.App.Env)
		if err != nil {
			return nil, fmt.Errorf("postgres dsn: %w", err)
		}
		src.ExternalResets = append(src.ExternalResets, &postgres.ResetListener{
			DSN:          dsn,
			Channel:      cfg.Postgres.ResetChannel,
			MinReconnect: cfg.Postgres.MinReconnect,
			MaxReconnect: cfg.Postgres.MaxReconnect,
			Logger:       logger.Named("pgreset"),
		})
	}

	if cfg.Reset.Cron != "" {
		cr, err := schedule.NewCronReset(cfg.Reset.Cron, cfg.Reset.Timezone, logger.Named("schedule"))
		if err != nil {
			return nil, err
		}
		src.ExternalResets = append(src.ExternalResets, cr)
	}

	return &src, nil
}

// feedTopics returns the configured topics, or for a bybit feed without any,
// one ticker topic per USDT symbol listed by the REST API.
func feedTopics(ctx context.Context, cfg config.FeedConfig, logger *zap.Logger) ([]string, error) {
	if cfg.Format != feed.FormatBybit || len(cfg.Topics) > 0 {
		return cfg.Topics, nil
	}

	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	symbols, err := bybit.NewRESTClient(cfg.RESTURL, restTimeout).GetUSDTSymbols(ctx, cfg.Category)
	if err != nil {
		return nil, fmt.Errorf("fetch bybit symbols: %w", err)
	}
	logger.Info("bybit symbols loaded", zap.Int("count", len(symbols)))
	return bybit.TickerTopics(symbols), nil
}

// Pipeline is the wired service: sources, aggregator and server.
type Pipeline struct {
	agg    *aggregator.Aggregator
	server *server.Server
	feed   *feed.Feed
	logger *zap.Logger
}

// New builds every component without starting any of them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	src, err := BuildSources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []aggregator.Option
	if len(src.ExternalResets) > 0 {
		opts = append(opts, aggregator.WithExternalResets(stream.Merge(src.ExternalResets...)))
	}
	agg := aggregator.New(src.Updates, src.Resets, logger.Named("aggregator"), opts...)

	return &Pipeline{
		agg:    agg,
		server: server.New(agg, cfg.Server, logger.Named("server")),
		feed:   src.feed,
		logger: logger,
	}, nil
}

// Handler serves the websocket and HTTP endpoints.
func (p *Pipeline) Handler() http.Handler {
	return p.server.Handler()
}

// Run starts the feed and the server and blocks until ctx ends or a
// component fails.
func (p *Pipeline) Run(ctx context.Context) error {
	// debug trail of every snapshot; also keeps the upstreams connected
	trail := p.agg.Subscribe(aggregator.ObserverFuncs{
		Snapshot: func(t price.Table) {
			p.logger.Debug("price snapshot", zap.Int("symbols", len(t)))
		},
		Error: func(err error) {
			p.logger.Error("price stream failed", zap.Error(err))
		},
	})
	defer trail.Unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	if p.feed != nil {
		g.Go(func() error { return p.feed.Run(ctx) })
	}
	g.Go(func() error { return p.server.Run(ctx) })

	return g.Wait()
}

// Start builds the pipeline and runs it.
func Start(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	p, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}
