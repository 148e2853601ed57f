package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tickerTopicPrefix = "tickers."

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetUSDTSymbols fetches trading symbols quoted in USDT for a category
// ("linear", "spot", ...), one per base coin.
func (c *RESTClient) GetUSDTSymbols(ctx context.Context, category string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v5/market/instruments-info?category=%s&limit=1000", c.baseURL, category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bybit error: %s", body)
	}

	var rawResp BybitResponse
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", rawResp.RetCode, rawResp.RetMsg)
	}

	var result InstrumentListResponse
	if err := json.Unmarshal(rawResp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	seen := map[string]bool{}
	var symbols []string
	for _, s := range result.List {
		if s.QuoteCoin != "USDT" || seen[s.BaseCoin] {
			continue
		}
		if s.Status != "" && s.Status != "Trading" {
			continue
		}
		symbols = append(symbols, s.Symbol)
		seen[s.BaseCoin] = true
	}

	return symbols, nil
}

// TickerTopics builds websocket subscription args, e.g. "tickers.BTCUSDT".
func TickerTopics(symbols []string) []string {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, tickerTopicPrefix+s)
	}
	return topics
}

// IsTickerTopic returns true if the topic string indicates a ticker stream.
func IsTickerTopic(topic string) bool {
	return len(topic) > len(tickerTopicPrefix) && topic[:len(tickerTopicPrefix)] == tickerTopicPrefix
}

// SymbolFromTopic parses the symbol from a topic like "tickers.BTCUSDT".
func SymbolFromTopic(topic string) string {
	if !IsTickerTopic(topic) {
		return ""
	}
	return topic[len(tickerTopicPrefix):]
}
