package feed

import (
	"context"
	"fmt"

	"pricestate/internal/price"
	"pricestate/pkg/pricefeed"
	"pricestate/pkg/stream"

	"go.uber.org/zap"
)

// Frame dialects understood by the feed.
const (
	FormatNative = "native"
	FormatBybit  = "bybit"
)

// Feed exposes a websocket price feed as an update source and a reset source.
type Feed struct {
	client  *pricefeed.WSClient
	updates *stream.Subject[price.Update]
	resets  *stream.Subject[price.Reset]
	logger  *zap.Logger
}

// New wires client frames in the given format into the feed's sources.
func New(client *pricefeed.WSClient, format string, logger *zap.Logger) (*Feed, error) {
	f := &Feed{
		client:  client,
		updates: stream.NewSubject[price.Update](),
		resets:  stream.NewSubject[price.Reset](),
		logger:  logger,
	}

	switch format {
	case FormatNative, "":
		client.SetMessageHandler(MakeMessageHandler(logger, f.updates, f.resets))
	case FormatBybit:
		client.SetMessageHandler(MakeBybitHandler(logger, f.updates))
	default:
		return nil, fmt.Errorf("unknown feed format %q", format)
	}
	return f, nil
}

func (f *Feed) Updates() stream.Source[price.Update] { return f.updates }

func (f *Feed) Resets() stream.Source[price.Reset] { return f.resets }

// Run connects and listens until ctx ends or the connection is lost for
// good. A lost connection fails both sources; ctx ending completes them.
func (f *Feed) Run(ctx context.Context) error {
	err := f.client.Connect(ctx)
	if err == nil {
		err = f.client.Listen(ctx)
	}

	if err != nil && ctx.Err() == nil {
		f.logger.Error("price feed stopped", zap.Error(err))
		_ = f.updates.Fail(err)
		_ = f.resets.Fail(err)
		return err
	}

	_ = f.updates.Complete()
	_ = f.resets.Complete()
	return nil
}
