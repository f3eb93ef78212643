package paystack

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Simulated is an in-memory provider used in dev environments and tests.
// Every transaction succeeds unless the caller marks the reference as failing.
type Simulated struct {
	mu           sync.Mutex
	transactions map[string]*TransactionResult
	transfers    map[string]*TransferResult
	refunds      []RefundParams
	failRefs     map[string]bool
}

// NewSimulated constructs an empty simulated provider.
func NewSimulated() *Simulated {
	return &Simulated{
		transactions: map[string]*TransactionResult{},
		transfers:    map[string]*TransferResult{},
		failRefs:     map[string]bool{},
	}
}

// FailNext marks a reference so its verify/transfer reports failure.
func (s *Simulated) FailNext(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefs[reference] = true
}

func (s *Simulated) InitializeTransaction(_ context.Context, params InitializeParams) (*InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reference := params.Reference
	if reference == "" {
		reference = "sim_" + uuid.NewString()
	}

	metadata, _ := encodeMetadata(params.Metadata)
	s.transactions[reference] = &TransactionResult{
		Reference:   reference,
		Status:      TransactionStatusSuccess,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Metadata:    metadata,
	}

	return &InitializeResult{
		AuthorizationURL: fmt.Sprintf("https://checkout.simulated.local/%s", reference),
		AccessCode:       "sim_access_" + reference,
		Reference:        reference,
	}, nil
}

func (s *Simulated) VerifyTransaction(_ context.Context, reference string) (*TransactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[reference]
	if !ok {
		return &TransactionResult{Reference: reference, Status: TransactionStatusAbandoned}, nil
	}
	if s.failRefs[reference] {
		failed := *txn
		failed.Status = TransactionStatusFailed
		return &failed, nil
	}
	return txn, nil
}

func (s *Simulated) InitiateTransfer(_ context.Context, params TransferParams) (*TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reference := params.Reference
	if reference == "" {
		reference = "sim_trf_" + uuid.NewString()
	}

	status := "pending"
	if s.failRefs[reference] {
		status = "failed"
	}

	result := &TransferResult{
		Reference:    reference,
		TransferCode: "TRF_sim_" + reference,
		Status:       status,
		AmountCents:  params.AmountCents,
	}
	s.transfers[reference] = result
	return result, nil
}

func (s *Simulated) SubmitRefund(_ context.Context, params RefundParams) (*RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refunds = append(s.refunds, params)
	return &RefundResult{
		ID:          int64(len(s.refunds)),
		Status:      "pending",
		AmountCents: params.AmountCents,
	}, nil
}

// Refunds returns the refund submissions captured so far.
func (s *Simulated) Refunds() []RefundParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RefundParams, len(s.refunds))
	copy(out, s.refunds)
	return out
}
