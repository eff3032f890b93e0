package domain

import (
	"fmt"
	"strings"
)

// Asset identifies one of the tracked cryptocurrencies. The set is closed and
// known at startup; anything else is rejected with ErrUnknownAsset.
type Asset string

const (
	AssetBitcoin  Asset = "bitcoin"
	AssetMatic    Asset = "matic"
	AssetEthereum Asset = "ethereum"
)

// allAssets fixes the iteration order used by the poller and the archiver.
var allAssets = []Asset{AssetBitcoin, AssetMatic, AssetEthereum}

// assetTables maps each asset to the table holding its snapshot series.
var assetTables = map[Asset]string{
	AssetBitcoin:  "bitcoin_snapshots",
	AssetMatic:    "matic_snapshots",
	AssetEthereum: "ethereum_snapshots",
}

// AllAssets returns a copy of the tracked asset set in a stable order.
func AllAssets() []Asset {
	out := make([]Asset, len(allAssets))
	copy(out, allAssets)
	return out
}

// ParseAsset normalises s (trim + lower-case) and returns the matching Asset.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	return a, nil
}

// Valid reports whether a belongs to the tracked set.
func (a Asset) Valid() bool {
	_, ok := assetTables[a]
	return ok
}

// Table returns the storage partition for a. It returns an empty string for
// unknown assets; callers validate first.
func (a Asset) Table() string {
	return assetTables[a]
}

func (a Asset) String() string {
	return string(a)
}
