package aggregator

import "pricestate/internal/price"

// Event is one input to the fold: either an UpdateEvent or a ResetEvent.
type Event interface {
	isEvent()
}

// UpdateEvent sets one symbol's price.
type UpdateEvent struct {
	price.Update
}

// ResetEvent discards every accumulated price.
type ResetEvent struct{}

func (UpdateEvent) isEvent() {}
func (ResetEvent) isEvent()  {}

// Fold returns the table that follows current once ev is applied.
// current is never modified.
func Fold(current price.Table, ev Event) price.Table {
	switch e := ev.(type) {
	case UpdateEvent:
		return current.With(e.Symbol, e.Price)
	case ResetEvent:
		return price.Empty()
	default:
		return current
	}
}
