package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKriegler/go-parametric/internal/core"
)

const (
	settlementAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	txHash         = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

type fakeReader struct {
	receipt    *types.Receipt
	receiptErr error
	tx         *types.Transaction
}

func (f fakeReader) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f fakeReader) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	if f.tx == nil {
		return nil, false, ethereum.NotFound
	}
	return f.tx, false, nil
}

var paidPolicy = core.Policy{ID: "p-1", Identifier: "6E-2134", UnitCount: 2, TotalPremium: 0.15}

func purchaseCall(t *testing.T, identifier string, unitCount, premium int64) []byte {
	t.Helper()
	data, err := settlementABI.Pack("purchase",
		identifier, big.NewInt(25), big.NewInt(unitCount), big.NewInt(premium), []byte{0x01})
	require.NoError(t, err)
	return data
}

func purchaseTx(to string, chainID int64, data []byte) *types.Transaction {
	addr := common.HexToAddress(to)
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		To:        &addr,
		Value:     big.NewInt(150_000_000_000_000_000),
		Gas:       60_000,
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(1),
		Data:      data,
	})
}

func TestPaymentVerifier(t *testing.T) {
	ok := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	policy := paidPolicy
	call := purchaseCall(t, "6E-2134", 2, 15)
	txTo := func(to string, chainID int64) *types.Transaction { return purchaseTx(to, chainID, call) }

	cases := []struct {
		name    string
		reader  fakeReader
		wantErr error
	}{
		{"paid to settlement", fakeReader{receipt: ok, tx: txTo(settlementAddr, 31337)}, nil},
		{"not mined", fakeReader{receiptErr: ethereum.NotFound}, core.ErrValidation},
		{"reverted", fakeReader{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}, core.ErrValidation},
		{"wrong recipient", fakeReader{receipt: ok, tx: txTo("0x70997970C51812dc3A010C7d01b50e0d17dc79C8", 31337)}, core.ErrValidation},
		{"wrong chain", fakeReader{receipt: ok, tx: txTo(settlementAddr, 1)}, core.ErrValidation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := NewPaymentVerifier(c.reader, settlementAddr, big.NewInt(31337))
			err := v.VerifyPayment(context.Background(), txHash, policy)
			if c.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.wantErr)
		})
	}
}

func TestPaymentVerifier_PurchaseMustMatchPolicy(t *testing.T) {
	ok := &types.Receipt{Status: types.ReceiptStatusSuccessful}

	cases := []struct {
		name string
		data []byte
	}{
		{"no calldata", nil},
		{"unknown method", []byte{0xde, 0xad, 0xbe, 0xef, 0x00}},
		{"other flight", purchaseCall(t, "AI-0101", 2, 15)},
		{"fewer units", purchaseCall(t, "6E-2134", 1, 15)},
		{"underpaid", purchaseCall(t, "6E-2134", 2, 14)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reader := fakeReader{receipt: ok, tx: purchaseTx(settlementAddr, 31337, c.data)}
			v := NewPaymentVerifier(reader, settlementAddr, big.NewInt(31337))
			assert.ErrorIs(t, v.VerifyPayment(context.Background(), txHash, paidPolicy), core.ErrValidation)
		})
	}
}

func TestPaymentVerifier_RPCFailureIsNotValidation(t *testing.T) {
	rpcDown := errors.New("dial tcp: connection refused")
	v := NewPaymentVerifier(fakeReader{receiptErr: rpcDown}, settlementAddr, big.NewInt(31337))

	err := v.VerifyPayment(context.Background(), txHash, core.Policy{ID: "p-1"})
	assert.ErrorIs(t, err, rpcDown)
	assert.NotErrorIs(t, err, core.ErrValidation)
}
