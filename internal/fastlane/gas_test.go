package fastlane

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBumpedGasPrice_MultiplicativeWinsOnLargeBase(t *testing.T) {
	// 100 gwei * 1.15 = 115 gwei, vs 100 + 1.5 = 101.5 gwei: multiplicative wins.
	current := new(big.Int).Mul(big.NewInt(100), oneGwei)
	bumped := bumpedGasPrice(current)
	expected := new(big.Int).Mul(big.NewInt(115), oneGwei)
	require.Equal(t, 0, bumped.Cmp(expected))
}

func TestBumpedGasPrice_AdditiveFloorWinsOnSmallBase(t *testing.T) {
	// 1 gwei * 1.15 = 1.15 gwei, vs 1 + 1.5 = 2.5 gwei: additive floor wins.
	current := new(big.Int).Set(oneGwei)
	bumped := bumpedGasPrice(current)
	expected := new(big.Int).Add(oneGwei, priorityBumpWei)
	require.Equal(t, 0, bumped.Cmp(expected))
}
