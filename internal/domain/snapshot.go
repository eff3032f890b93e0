package domain

import "time"

// DefaultSampleLimit is the number of most recent snapshots used for the
// rolling deviation.
const DefaultSampleLimit = 100

// Snapshot is one timestamped capture of an asset's market data. Snapshots are
// append-only: once written they are never updated or deleted.
type Snapshot struct {
	ID             int64     `json:"_id,omitempty"`
	Asset          Asset     `json:"asset"`
	CurrentPrice   float64   `json:"currentPrice"`
	MarketCap      float64   `json:"marketCap"`
	PriceChange24h float64   `json:"priceChange24h"`
	Timestamp      time.Time `json:"timestamp"`
}

// Quote is a single asset's market data as reported by the provider, before
// it is persisted as a Snapshot.
type Quote struct {
	Asset          Asset
	CurrentPrice   float64
	MarketCap      float64
	PriceChange24h float64
}

// ToSnapshot converts the quote into an unsaved Snapshot. The timestamp is
// left zero so the store assigns the write time.
func (q Quote) ToSnapshot() Snapshot {
	return Snapshot{
		Asset:          q.Asset,
		CurrentPrice:   q.CurrentPrice,
		MarketCap:      q.MarketCap,
		PriceChange24h: q.PriceChange24h,
	}
}

// Deviation is the result of the rolling standard deviation query.
type Deviation struct {
	Coin              Asset   `json:"coin"`
	StandardDeviation float64 `json:"standardDeviation"`
	DataPoints        int     `json:"dataPoints"`
	Message           string  `json:"message"`
}
