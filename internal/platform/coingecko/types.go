package coingecko

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// MarketEntry is one element of the /coins/markets response. Numeric fields
// are pointers because the API reports null for coins it has no data for.
type MarketEntry struct {
	ID             string   `json:"id"`
	Symbol         string   `json:"symbol"`
	CurrentPrice   *float64 `json:"current_price"`
	MarketCap      *float64 `json:"market_cap"`
	PriceChange24h *float64 `json:"price_change_24h"`
}

func (e MarketEntry) toQuote(asset domain.Asset) (domain.Quote, bool) {
	if e.CurrentPrice == nil {
		return domain.Quote{}, false
	}
	q := domain.Quote{Asset: asset, CurrentPrice: *e.CurrentPrice}
	if e.MarketCap != nil {
		q.MarketCap = *e.MarketCap
	}
	if e.PriceChange24h != nil {
		q.PriceChange24h = *e.PriceChange24h
	}
	return q, true
}

// decodeMarkets accepts the documented array shape and the object-keyed shape
// ({"bitcoin": {...}}) some proxies return. In the keyed shape the map key
// supplies the id when the entry has none.
func decodeMarkets(body []byte) ([]MarketEntry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	switch trimmed[0] {
	case '[':
		var entries []MarketEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		var keyed map[string]MarketEntry
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, err
		}
		entries := make([]MarketEntry, 0, len(keyed))
		for id, e := range keyed {
			if e.ID == "" {
				e.ID = id
			}
			entries = append(entries, e)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unexpected response shape starting with %q", trimmed[0])
	}
}
