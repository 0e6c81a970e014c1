package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const actionRepositoryABI = `[
 {"type":"function","name":"submitAction","stateMutability":"nonpayable","inputs":[{"name":"metadataUri","type":"string"}],"outputs":[]},
 {"type":"function","name":"actionCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getAction","stateMutability":"view","inputs":[{"name":"actionId","type":"int64"}],
  "outputs":[{"name":"owner","type":"address"},{"name":"status","type":"uint8"},{"name":"tokenAmount","type":"int64"},{"name":"serialNumber","type":"int64"},{"name":"metadataUri","type":"string"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"actionId","type":"int64"},{"name":"tokenAmount","type":"int64"}],"outputs":[]},
 {"type":"function","name":"reject","stateMutability":"nonpayable","inputs":[{"name":"actionId","type":"int64"}],"outputs":[]},
 {"type":"function","name":"reedemAction","stateMutability":"nonpayable","inputs":[{"name":"serialNumber","type":"int64"}],"outputs":[]},
 {"type":"function","name":"latestSerialNumber","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int64"}]},
 {"type":"event","name":"ActionSubmitted","anonymous":false,"inputs":[
  {"name":"actionId","type":"uint256","indexed":true},
  {"name":"owner","type":"address","indexed":true},
  {"name":"metadataUri","type":"string","indexed":false}]}
]`

// tokenABI covers the ERC-20 carbon credit token and the ERC-721 action NFT. Both expose
// approve(address,uint256) and a Transfer event; the NFT's third argument is the serial.
const tokenABI = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[
  {"name":"from","type":"address","indexed":true},
  {"name":"to","type":"address","indexed":true},
  {"name":"value","type":"uint256","indexed":false}]}
]`

// hip719ABI is the Hedera token proxy facade an account calls on the token address itself.
const hip719ABI = `[
 {"type":"function","name":"isAssociated","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"associate","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"responseCode","type":"uint256"}]}
]`

const marketplaceABI = `[
 {"type":"function","name":"listTokens","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"totalPrice","type":"uint256"},{"name":"expiresIn","type":"uint256"}],"outputs":[{"name":"listingId","type":"uint256"}]},
 {"type":"function","name":"cancelListing","stateMutability":"nonpayable","inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"TokensListed","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"totalPrice","type":"uint256","indexed":false},
  {"name":"expiresAt","type":"uint256","indexed":false}]},
 {"type":"event","name":"ListingFilled","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},
  {"name":"buyer","type":"address","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"totalPrice","type":"uint256","indexed":false}]}
]`

var (
	actionRepository = mustParseABI(actionRepositoryABI)
	token            = mustParseABI(tokenABI)
	hip719           = mustParseABI(hip719ABI)
	marketplace      = mustParseABI(marketplaceABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ledger: invalid abi: " + err.Error())
	}
	return parsed
}
