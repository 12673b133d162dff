package utils

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var planHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func IsValidEthereumAddress(address string) bool {
	return common.IsHexAddress(address)
}

// IsValidPlanHash reports whether s looks like a 32-byte 0x-prefixed hash.
func IsValidPlanHash(s string) bool {
	return planHashPattern.MatchString(s)
}

// PlanHash derives the content-derived plan identifier:
// keccak256(tokenOut || recipient) over the raw 20-byte addresses. Client
// and server can both compute it before any on-chain transaction exists.
func PlanHash(tokenOut, recipient string) string {
	token := common.HexToAddress(tokenOut)
	rcpt := common.HexToAddress(recipient)
	hash := crypto.Keccak256(token.Bytes(), rcpt.Bytes())
	return "0x" + strings.ToLower(common.Bytes2Hex(hash))
}
