// Package attestation signs premium commitments in the form an EVM
// settlement contract checks with ecrecover.
package attestation

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/MrKriegler/go-parametric/internal/core"
)

const wordSize = 32

type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ core.AttestationSigner = (*Signer)(nil)

// NewSigner parses a hex secp256k1 key, with or without the 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: signer private key is empty", core.ErrConfiguration)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the parse error can echo key material, so it is not wrapped
		return nil, fmt.Errorf("%w: signer private key is not a valid secp256k1 key", core.ErrConfiguration)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address is the checksummed signer address the contract is configured with.
func (s *Signer) Address() string {
	return s.address.Hex()
}

func (s *Signer) Sign(identifier string, perUnitAmount, unitCount, scaledPremium uint64) (core.Attestation, error) {
	digest := Digest(identifier, perUnitAmount, unitCount, scaledPremium)

	sig, err := crypto.Sign(accounts.TextHash(digest.Bytes()), s.key)
	if err != nil {
		return core.Attestation{}, fmt.Errorf("attestation.sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return core.Attestation{
		Identifier:    identifier,
		PerUnitAmount: perUnitAmount,
		UnitCount:     unitCount,
		ScaledPremium: scaledPremium,
		Hash:          digest.Hex(),
		Signature:     hexutil.Encode(sig),
		Signer:        s.Address(),
	}, nil
}

// Recover returns the address that produced a.Signature over a's fields.
func (s *Signer) Recover(a core.Attestation) (string, error) {
	return Recover(a)
}

func Recover(a core.Attestation) (string, error) {
	sig, err := hexutil.Decode(a.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: signature must be 65 hex-encoded bytes", core.ErrValidation)
	}
	sig = common.CopyBytes(sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := Digest(a.Identifier, a.PerUnitAmount, a.UnitCount, a.ScaledPremium)
	pub, err := crypto.SigToPub(accounts.TextHash(digest.Bytes()), sig)
	if err != nil {
		return "", fmt.Errorf("%w: signature does not recover: %v", core.ErrValidation, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Digest is keccak256 over the packed tuple.
func Digest(identifier string, perUnitAmount, unitCount, scaledPremium uint64) common.Hash {
	return crypto.Keccak256Hash(Pack(identifier, perUnitAmount, unitCount, scaledPremium))
}

// Pack matches abi.encodePacked(string, uint256, uint256, uint256): the
// identifier's raw bytes with no length prefix, then three 32-byte
// big-endian words. Changing this invalidates every issued attestation.
func Pack(identifier string, perUnitAmount, unitCount, scaledPremium uint64) []byte {
	out := make([]byte, 0, len(identifier)+3*wordSize)
	out = append(out, identifier...)
	for _, v := range []uint64{perUnitAmount, unitCount, scaledPremium} {
		out = append(out, common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), wordSize)...)
	}
	return out
}
