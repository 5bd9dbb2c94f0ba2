package discovery

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// poolCreatedTopicHex is the Uniswap V3 Factory PoolCreated topic hash fixed
// by
const poolCreatedTopicHex = "0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118"

// PoolCreatedTopic is the parsed log topic used in eth_getLogs filters and
// eth_subscribe("logs",...) filters.
var PoolCreatedTopic = common.HexToHash(poolCreatedTopicHex)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

const factoryABIJSON = `[
	{"anonymous":false,"inputs":[
			{"indexed":true,"name":"token0","type":"address"},
			{"indexed":true,"name":"token1","type":"address"},
			{"indexed":true,"name":"fee","type":"uint24"},
			{"indexed":false,"name":"tickSpacing","type":"int24"},
			{"indexed":false,"name":"pool","type":"address"}
		],"name":"PoolCreated","type":"event"}
]`

var erc20ABI abi.ABI
var factoryABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("discovery: invalid embedded ERC20 ABI: " + err.Error())
	}
	factoryABI, err = abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		panic("discovery: invalid embedded factory ABI: " + err.Error())
	}
}

// DecodedPoolCreated is the typed shape of a decoded PoolCreated log.
type DecodedPoolCreated struct {
	Token0 common.Address
	Token1 common.Address
	Fee uint32
	TickSpacing int32
	Pool common.Address
}
