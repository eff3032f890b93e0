package domain

import "context"

// QuoteProvider fetches current market data for a batch of assets. Assets the
// provider did not report are absent from the returned map. Transport and
// decode failures wrap ErrProviderFetch.
type QuoteProvider interface {
	FetchQuotes(ctx context.Context, assets []Asset) (map[Asset]Quote, error)
}
