package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAsset(t *testing.T) {
	tests := []struct {
		in      string
		want    Asset
		wantErr bool
	}{
		{in: "bitcoin", want: AssetBitcoin},
		{in: "Bitcoin", want: AssetBitcoin},
		{in: "  ETHEREUM ", want: AssetEthereum},
		{in: "matic", want: AssetMatic},
		{in: "dogecoin", wantErr: true},
		{in: "", wantErr: true},
		{in: "bitcoin_snapshots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAsset(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownAsset))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssetTable(t *testing.T) {
	assert.Equal(t, "bitcoin_snapshots", AssetBitcoin.Table())
	assert.Equal(t, "matic_snapshots", AssetMatic.Table())
	assert.Equal(t, "ethereum_snapshots", AssetEthereum.Table())
	assert.Empty(t, Asset("solana").Table())
}

func TestAllAssets(t *testing.T) {
	all := AllAssets()
	assert.Equal(t, []Asset{AssetBitcoin, AssetMatic, AssetEthereum}, all)

	// Mutating the returned slice must not leak into the package state.
	all[0] = "mutated"
	assert.Equal(t, AssetBitcoin, AllAssets()[0])

	tables := make(map[string]bool)
	for _, a := range AllAssets() {
		assert.True(t, a.Valid())
		tables[a.Table()] = true
	}
	assert.Len(t, tables, 3)
}

func TestQuoteToSnapshot(t *testing.T) {
	q := Quote{Asset: AssetMatic, CurrentPrice: 0.71, MarketCap: 6.6e9, PriceChange24h: -0.02}
	s := q.ToSnapshot()

	assert.Equal(t, AssetMatic, s.Asset)
	assert.Equal(t, 0.71, s.CurrentPrice)
	assert.Equal(t, 6.6e9, s.MarketCap)
	assert.Equal(t, -0.02, s.PriceChange24h)
	assert.True(t, s.Timestamp.IsZero())
	assert.Zero(t, s.ID)
}
