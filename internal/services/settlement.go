package services

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapExecutedTopic is the signature hash of the forwarding contract's
// settlement event:
//
//	event SwapExecuted(
//	    address indexed user,
//	    address recipient,
//	    address toToken,
//	    uint256 amountIn,
//	    uint256 indexed amountOut,
//	    uint256 feeAmount
//	)
var SwapExecutedTopic = common.HexToHash("0xad671c9d50262b75ba17bdf7e330ae0d7da971800b2526584a85f83d23296b15")

// Settlement holds the authoritative amounts recovered from the receipt.
// All values are decimal strings in base units.
type Settlement struct {
	AmountIn  string
	AmountOut string
	FeeAmount string
}

// Found reports whether the settlement event was located in the receipt.
func (s Settlement) Found() bool {
	return s.AmountOut != "0" || s.AmountIn != "0"
}

// ParseSwapExecutedEvent scans the receipt for the forwarder's SwapExecuted
// log and decodes the settled amounts. amountOut comes from the second
// indexed topic, amountIn from the third 32-byte data slot. The fee is not
// emitted on-chain in this contract version; it is derived as a flat 3% of
// amountIn with floor division, which silently misreports the true fee if
// the contract's fee schedule ever diverges from that. Absent or malformed
// logs yield zeros; this function never fails.
func ParseSwapExecutedEvent(receipt *types.Receipt, forwarder common.Address) Settlement {
	zero := Settlement{AmountIn: "0", AmountOut: "0", FeeAmount: "0"}
	if receipt == nil {
		return zero
	}

	for _, logEntry := range receipt.Logs {
		if logEntry == nil || logEntry.Address != forwarder {
			continue
		}
		if len(logEntry.Topics) < 3 || logEntry.Topics[0] != SwapExecutedTopic {
			continue
		}

		// data layout: recipient | toToken | amountIn, 32-byte slots
		if len(logEntry.Data) < 96 {
			return zero
		}

		amountOut := new(big.Int).SetBytes(logEntry.Topics[2].Bytes())
		amountIn := new(big.Int).SetBytes(logEntry.Data[64:96])
		feeAmount := new(big.Int).Div(new(big.Int).Mul(amountIn, big.NewInt(3)), big.NewInt(100))

		return Settlement{
			AmountIn:  amountIn.String(),
			AmountOut: amountOut.String(),
			FeeAmount: feeAmount.String(),
		}
	}

	return zero
}
