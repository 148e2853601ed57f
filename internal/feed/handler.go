package feed

import (
	"encoding/json"

	"pricestate/internal/price"
	"pricestate/pkg/stream"

	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that decodes feed frames and
// publishes them to the update and reset subjects.
func MakeMessageHandler(logger *zap.Logger, updates *stream.Subject[price.Update],
	resets *stream.Subject[price.Reset]) func(msg []byte) {
	return func(msg []byte) {
		var m Message
		if err := json.Unmarshal(msg, &m); err != nil {
			logger.Warn("failed to decode feed message", zap.Error(err))
			return
		}

		switch m.Type {
		case TypePrice:
			if m.Symbol == "" || m.Price == nil {
				logger.Warn("skipping incomplete price message", zap.ByteString("msg", msg))
				return
			}
			if err := updates.Publish(price.Update{Symbol: m.Symbol, Price: *m.Price}); err != nil {
				logger.Debug("update dropped", zap.String("symbol", m.Symbol), zap.Error(err))
			}
		case TypeReset:
			if err := resets.Publish(price.Reset{}); err != nil {
				logger.Debug("reset dropped", zap.Error(err))
			}
		default:
			// subscription acks, heartbeats
			logger.Debug("ignoring feed message", zap.String("type", m.Type))
		}
	}
}
