package feed

import (
	"encoding/json"
	"strconv"

	"pricestate/internal/price"
	"pricestate/pkg/bybit"
	"pricestate/pkg/stream"

	"go.uber.org/zap"
)

// MakeBybitHandler returns a function that turns Bybit v5 public ticker
// pushes into price updates. Bybit has no reset frame.
func MakeBybitHandler(logger *zap.Logger, updates *stream.Subject[price.Update]) func(msg []byte) {
	return func(msg []byte) {
		// Extract topic string for early filtering
		var meta struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(msg, &meta); err != nil {
			logger.Warn("failed to extract topic", zap.Error(err))
			return
		}
		if !bybit.IsTickerTopic(meta.Topic) {
			return // subscription responses, pongs
		}

		var parsed bybit.TickerMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			logger.Warn("failed to parse ticker payload", zap.Error(err))
			return
		}
		if parsed.Data.LastPrice == "" {
			return // delta without a trade
		}

		symbol := parsed.Data.Symbol
		if symbol == "" {
			symbol = bybit.SymbolFromTopic(parsed.Topic)
		}
		p, err := strconv.ParseFloat(parsed.Data.LastPrice, 64)
		if err != nil {
			logger.Warn("failed to parse last price", zap.String("symbol", symbol), zap.Error(err))
			return
		}

		if err := updates.Publish(price.Update{Symbol: symbol, Price: p}); err != nil {
			logger.Debug("update dropped", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
