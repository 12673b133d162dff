package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SwapKind selects the forwarding contract entry point.
type SwapKind string

const (
	// SwapKindStandard invokes executeSwap for plain ERC-20 destinations.
	SwapKindStandard SwapKind = "standard"
	// SwapKindNative invokes executeNativeSwap for destinations that require
	// the native-asset (wrap/unwrap) path.
	SwapKindNative SwapKind = "native"
)

const forwarderABIJSON = `[
	{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"bytes","name":"swapData","type":"bytes"}],"name":"executeSwap","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"bytes","name":"swapData","type":"bytes"}],"name":"executeNativeSwap","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const erc20ABIJSON = `[
	{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ChainService reads allowances and submits swap transactions through the
// forwarding contract. It holds the single shared signer key; nonce
// assignment is serialized so concurrent executions never collide. It does
// not interpret contract semantics beyond entry-point dispatch.
type ChainService interface {
	GetAllowance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ExecuteSwap(ctx context.Context, kind SwapKind, user, tokenOut, recipient common.Address, amountIn *big.Int, calldata []byte) (*types.Receipt, error)
	ForwarderAddress() common.Address
	Close()
}

type chainService struct {
	client       *ethclient.Client
	privateKey   *ecdsa.PrivateKey
	sender       common.Address
	forwarder    common.Address
	chainID      *big.Int
	forwarderABI abi.ABI
	erc20ABI     abi.ABI

	// guards nonce assignment between PendingNonceAt and SendTransaction
	nonceMu sync.Mutex

	waitMined func(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error)
}

func NewChainService(rpcURL, privateKeyHex, forwarderAddress string) (ChainService, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid executor private key: %w", err)
	}

	chainID, err := client.NetworkID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get network ID: %w", err)
	}

	forwarderABI, err := abi.JSON(strings.NewReader(forwarderABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse forwarder ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	return &chainService{
		client:       client,
		privateKey:   privateKey,
		sender:       crypto.PubkeyToAddress(privateKey.PublicKey),
		forwarder:    common.HexToAddress(forwarderAddress),
		chainID:      chainID,
		forwarderABI: forwarderABI,
		erc20ABI:     erc20ABI,
		waitMined:    bind.WaitMined,
	}, nil
}

func (s *chainService) ForwarderAddress() common.Address {
	return s.forwarder
}

// GetAllowance reads allowance(owner, forwarder) on the given token. RPC
// failures propagate unretried; retry policy belongs to the caller.
func (s *chainService) GetAllowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	callData, err := s.erc20ABI.Pack("allowance", owner, s.forwarder)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allowance call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}

	var allowance *big.Int
	if err := s.erc20ABI.UnpackIntoInterface(&allowance, "allowance", result); err != nil {
		return nil, fmt.Errorf("failed to decode allowance result: %w", err)
	}

	return allowance, nil
}

// ExecuteSwap signs and submits the forwarding contract call, then blocks
// until one confirmation. A mined-but-reverted transaction is an error; the
// receipt (including logs) is surfaced verbatim on success.
func (s *chainService) ExecuteSwap(ctx context.Context, kind SwapKind, user, tokenOut, recipient common.Address, amountIn *big.Int, calldata []byte) (*types.Receipt, error) {
	method := "executeSwap"
	if kind == SwapKindNative {
		method = "executeNativeSwap"
	}

	input, err := s.forwarderABI.Pack(method, user, tokenOut, recipient, amountIn, calldata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.sender,
		To:       &s.forwarder,
		Data:     input,
		GasPrice: gasPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}

	signedTx, err := s.signAndSend(ctx, input, gasPrice, gasLimit)
	if err != nil {
		return nil, err
	}

	receipt, err := s.waitMined(ctx, s.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for confirmation of %s: %w", signedTx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex())
	}

	return receipt, nil
}

func (s *chainService) signAndSend(ctx context.Context, input []byte, gasPrice *big.Int, gasLimit uint64) (*types.Transaction, error) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, s.forwarder, big.NewInt(0), gasLimit, gasPrice, input)

	signer := types.NewEIP155Signer(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx, nil
}

func (s *chainService) Close() {
	s.client.Close()
}
