package price

// Update is a single price tick for one instrument.
// Values are passed through as received; no range or sign checks are applied.
type Update struct {
	Symbol string  `json:"symbol"` // Instrument identifier (e.g., "XOM")
	Price  float64 `json:"price"`  // Latest traded or quoted price
}

// Reset clears every accumulated price. It carries no payload.
type Reset struct{}
