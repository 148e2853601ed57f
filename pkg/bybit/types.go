package bybit

import "encoding/json"

// BybitResponse represents a generic response from Bybit's V5 REST API.
// This structure covers the standard response envelope used across all endpoints.
type BybitResponse struct {
	RetCode    int                    `json:"retCode"`    // 0 means success; non-zero indicates an error code
	RetMsg     string                 `json:"retMsg"`     // Human-readable message describing the result or error
	Result     json.RawMessage        `json:"result"`     // Delay decoding // Main response payload (varies per endpoint)
	RetExtInfo map[string]interface{} `json:"retExtInfo"` // Optional extra info (e.g. rate limits, error hints)
	Time       int64                  `json:"time"`       // Server timestamp (in milliseconds since epoch)
}

type InstrumentListResponse struct {
	Category       string `json:"category"` // e.g., "linear", "spot"
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`    // e.g., "BTCUSDT"
		BaseCoin  string `json:"baseCoin"`  // e.g., "BTC"
		QuoteCoin string `json:"quoteCoin"` // e.g., "USDT"
		Status    string `json:"status"`    // e.g., "Trading"
	} `json:"list"`
}

// TickerMessage is a public "tickers.<symbol>" websocket push.
type TickerMessage struct {
	Topic string     `json:"topic"` // e.g., "tickers.BTCUSDT"
	Type  string     `json:"type"`  // "snapshot" or "delta"
	Ts    int64      `json:"ts"`    // Timestamp (in milliseconds) the message was generated
	Data  TickerData `json:"data"`
}

// TickerData carries the fields we read from a ticker push. Delta pushes
// only include fields that changed, so LastPrice may be empty.
type TickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}
