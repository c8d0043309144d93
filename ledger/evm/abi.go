package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CardABI is the interface of the NFTCard contract (ERC-721 plus card records).
const CardABI = `[
{"type":"constructor","inputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"mintCard","stateMutability":"nonpayable",
 "inputs":[{"name":"to","type":"address"},{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"tokenURI","type":"string"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getTokensByOwner","stateMutability":"view",
 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
{"type":"function","name":"getCardInfo","stateMutability":"view",
 "inputs":[{"name":"tokenId","type":"uint256"}],
 "outputs":[{"name":"","type":"tuple","components":[
   {"name":"creator","type":"address"},{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"createdAt","type":"uint256"}]}]},
{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"event","name":"CardMinted","anonymous":false,"inputs":[
 {"name":"tokenId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"name","type":"string","indexed":false}]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	a, err := abi.JSON(strings.NewReader(CardABI))
	if err != nil {
		panic(err)
	}
	return a
}

// ABI returns the parsed contract interface.
func ABI() abi.ABI { return parsedABI }
