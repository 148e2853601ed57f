package feed

// Message is a frame received from the upstream price feed.
//
//	{"type":"price","symbol":"XOM","price":48.17}
//	{"type":"reset"}
type Message struct {
	Type   string   `json:"type"`             // "price" or "reset"; other types are ignored
	Symbol string   `json:"symbol,omitempty"` // Instrument identifier, price frames only
	Price  *float64 `json:"price,omitempty"`  // Latest price, price frames only
}

const (
	TypePrice = "price"
	TypeReset = "reset"
)
