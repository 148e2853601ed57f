package aggregator

import (
	"sync"

	"pricestate/internal/price"
)

// Latest returns the table a new observer would see right now. When nobody
// else is subscribed this opens and immediately releases a fresh connection,
// so the result is empty.
func Latest(a *Aggregator) price.Table {
	var (
		once  sync.Once
		table price.Table
	)
	sub := a.Subscribe(ObserverFuncs{
		Snapshot: func(t price.Table) {
			once.Do(func() { table = t })
		},
	})
	sub.Unsubscribe()
	return table
}
