package core

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Attestation is a signed premium commitment for the settlement contract.
// It is returned to the caller and never stored.
type Attestation struct {
	Identifier    string `json:"identifier"`
	PerUnitAmount uint64 `json:"per_unit_amount"`
	UnitCount     uint64 `json:"unit_count"`
	ScaledPremium uint64 `json:"scaled_premium"`
	Hash          string `json:"hash"`
	Signature     string `json:"signature"`
	Signer        string `json:"signer"`
}

// AttestationSigner holds the service key. Implementations must never
// expose or log the key itself.
type AttestationSigner interface {
	Sign(identifier string, perUnitAmount, unitCount, scaledPremium uint64) (Attestation, error)
	Recover(a Attestation) (string, error)
	Address() string
}

// AttestationRequest carries amounts in the settlement contract's integer
// unit. PerUnitAmount is signed as given; TotalPremium is rounded to the
// nearest integer by ScalePremium.
type AttestationRequest struct {
	Identifier    string  `json:"identifier"`
	PerUnitAmount uint64  `json:"per_unit_amount"`
	UnitCount     int     `json:"unit_count"`
	TotalPremium  float64 `json:"total_premium"`
}

// AttestationCheck is the outcome of re-deriving an attestation's signer.
type AttestationCheck struct {
	Valid     bool   `json:"valid"`
	Recovered string `json:"recovered"`
	Expected  string `json:"expected"`
}

type AttestationService interface {
	Generate(ctx context.Context, req AttestationRequest) (Attestation, error)
	Verify(ctx context.Context, a Attestation) (AttestationCheck, error)
	SignerAddress() string
}

// DocumentStore keeps uploaded policy documents and returns a retrievable URL.
type DocumentStore interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

func (r AttestationRequest) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return fmt.Errorf("%w: identifier is required", ErrValidation)
	}
	if r.PerUnitAmount == 0 {
		return fmt.Errorf("%w: per_unit_amount must be > 0", ErrValidation)
	}
	if r.UnitCount < 1 {
		return fmt.Errorf("%w: unit_count must be >= 1", ErrValidation)
	}
	return nil
}

type attestationService struct {
	signer AttestationSigner
}

func NewAttestationService(signer AttestationSigner) AttestationService {
	return &attestationService{signer: signer}
}

func (s *attestationService) Generate(_ context.Context, req AttestationRequest) (Attestation, error) {
	if s.signer == nil {
		return Attestation{}, fmt.Errorf("%w: attestation signer not loaded", ErrConfiguration)
	}
	if err := req.Validate(); err != nil {
		return Attestation{}, err
	}
	scaled, err := ScalePremium(req.TotalPremium)
	if err != nil {
		return Attestation{}, err
	}
	return s.signer.Sign(req.Identifier, req.PerUnitAmount, uint64(req.UnitCount), scaled)
}

func (s *attestationService) Verify(_ context.Context, a Attestation) (AttestationCheck, error) {
	if s.signer == nil {
		return AttestationCheck{}, fmt.Errorf("%w: attestation signer not loaded", ErrConfiguration)
	}
	if a.Signature == "" {
		return AttestationCheck{}, fmt.Errorf("%w: signature is required", ErrValidation)
	}
	recovered, err := s.signer.Recover(a)
	if err != nil {
		return AttestationCheck{}, err
	}
	expected := s.signer.Address()
	return AttestationCheck{
		Valid:     strings.EqualFold(recovered, expected),
		Recovered: recovered,
		Expected:  expected,
	}, nil
}

func (s *attestationService) SignerAddress() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address()
}
