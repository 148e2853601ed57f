package aggregator

import "pricestate/internal/price"

// Observer receives the aggregate price stream.
//
// Callbacks run on the aggregator's delivery goroutine, one at a time and in
// event order. They may call Unsubscribe on any subscription but must not
// call Subscribe.
type Observer interface {
	OnSnapshot(t price.Table)
	OnError(err error)
	OnComplete()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot func(t price.Table)
	Error    func(err error)
	Complete func()
}

func (f ObserverFuncs) OnSnapshot(t price.Table) {
	if f.Snapshot != nil {
		f.Snapshot(t)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ObserverFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}
