package discovery

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestDecodePoolCreated(t *testing.T) {
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	pool := common.HexToAddress("0x3333333333333333333333333333333333333333")
	fee := uint32(3000)
	tickSpacing := int32(60)

	event := factoryABI.Events["PoolCreated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(int64(tickSpacing)), pool)
	require.NoError(t, err)

	l := types.Log{
		Topics: []common.Hash{
			PoolCreatedTopic,
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
			common.BigToHash(big.NewInt(int64(fee))),
		},
		Data: data,
	}

	decoded, err := DecodePoolCreated(l)
	require.NoError(t, err)
	require.Equal(t, token0, decoded.Token0)
	require.Equal(t, token1, decoded.Token1)
	require.Equal(t, fee, decoded.Fee)
	require.Equal(t, tickSpacing, decoded.TickSpacing)
	require.Equal(t, pool, decoded.Pool)
}

func TestDecodePoolCreated_RejectsShortTopics(t *testing.T) {
	l := types.Log{Topics: []common.Hash{PoolCreatedTopic}}
	_, err := DecodePoolCreated(l)
	require.Error(t, err)
}
