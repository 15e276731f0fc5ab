// Package chain checks settlement payments against an EVM node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/MrKriegler/go-parametric/internal/core"
)

// purchaseABI is the settlement contract entry point that pays for a policy.
// Its first four arguments are the attested tuple.
const purchaseABI = `[{
	"type": "function",
	"name": "purchase",
	"stateMutability": "payable",
	"inputs": [
		{"name": "identifier", "type": "string"},
		{"name": "perUnitAmount", "type": "uint256"},
		{"name": "unitCount", "type": "uint256"},
		{"name": "scaledPremium", "type": "uint256"},
		{"name": "signature", "type": "bytes"}
	],
	"outputs": []
}]`

var settlementABI = mustParseABI(purchaseABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TxReader is the slice of ethclient the verifier needs.
type TxReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

type PaymentVerifier struct {
	reader     TxReader
	settlement common.Address
	chainID    *big.Int
}

var _ core.PaymentVerifier = (*PaymentVerifier)(nil)

// Dial connects to rpcURL and checks that the node serves chainID.
func Dial(ctx context.Context, rpcURL, settlementAddress string, chainID int64) (*PaymentVerifier, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain.dial %s: %w", rpcURL, err)
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain.chainID: %w", err)
	}
	if chainID != 0 && remote.Int64() != chainID {
		client.Close()
		return nil, nil, fmt.Errorf("%w: rpc serves chain %s, expected %d", core.ErrConfiguration, remote, chainID)
	}
	return NewPaymentVerifier(client, settlementAddress, remote), client, nil
}

func NewPaymentVerifier(reader TxReader, settlementAddress string, chainID *big.Int) *PaymentVerifier {
	return &PaymentVerifier{
		reader:     reader,
		settlement: common.HexToAddress(settlementAddress),
		chainID:    chainID,
	}
}

// VerifyPayment accepts a transaction that was mined successfully, was sent
// to the settlement contract and purchased this policy: its calldata must
// carry the policy's identifier, unit count and total premium in hundredths.
func (v *PaymentVerifier) VerifyPayment(ctx context.Context, txHash string, policy core.Policy) error {
	hash := common.HexToHash(txHash)

	receipt, err := v.reader.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: settlement tx %s not mined", core.ErrValidation, txHash)
	}
	if err != nil {
		return fmt.Errorf("chain.receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: settlement tx %s reverted", core.ErrValidation, txHash)
	}

	tx, _, err := v.reader.TransactionByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("chain.transaction: %w", err)
	}
	if tx.To() == nil || *tx.To() != v.settlement {
		return fmt.Errorf("%w: settlement tx %s for policy %s was not sent to %s",
			core.ErrValidation, txHash, policy.ID, v.settlement.Hex())
	}
	if v.chainID != nil && tx.ChainId() != nil && tx.ChainId().Sign() != 0 && tx.ChainId().Cmp(v.chainID) != 0 {
		return fmt.Errorf("%w: settlement tx %s is on chain %s", core.ErrValidation, txHash, tx.ChainId())
	}
	return checkPurchase(tx.Data(), txHash, policy)
}

func checkPurchase(data []byte, txHash string, policy core.Policy) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: settlement tx %s carries no purchase call", core.ErrValidation, txHash)
	}
	method, err := settlementABI.MethodById(data[:4])
	if err != nil || method.Name != "purchase" {
		return fmt.Errorf("%w: settlement tx %s is not a purchase call", core.ErrValidation, txHash)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("%w: settlement tx %s has malformed purchase arguments: %v", core.ErrValidation, txHash, err)
	}

	identifier, _ := args[0].(string)
	unitCount, _ := args[2].(*big.Int)
	premium, _ := args[3].(*big.Int)

	mismatch := func(field string, got, want any) error {
		return fmt.Errorf("%w: settlement tx %s pays %s %v, policy %s expects %v",
			core.ErrValidation, txHash, field, got, policy.ID, want)
	}
	if identifier != policy.Identifier {
		return mismatch("identifier", identifier, policy.Identifier)
	}
	if unitCount == nil || unitCount.Cmp(big.NewInt(int64(policy.UnitCount))) != 0 {
		return mismatch("unit count", unitCount, policy.UnitCount)
	}
	if want := big.NewInt(core.MinorUnits(policy.TotalPremium)); premium == nil || premium.Cmp(want) != 0 {
		return mismatch("premium", premium, want)
	}
	return nil
}
