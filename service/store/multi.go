package store

import (
	"context"
	"errors"

	"github.com/brojonat/poolsniper/service/ledger"
)

// MultiTradeLog appends each trade to every underlying log.
// All logs are attempted; failures are joined.
type MultiTradeLog []ledger.TradeLog

func (m MultiTradeLog) AppendCompletedTrade(ctx context.Context, trade ledger.CompletedTrade) error {
	var errs []error
	for _, sink := range m {
		if err := sink.AppendCompletedTrade(ctx, trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
