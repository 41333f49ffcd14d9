package ledger

import (
	"testing"

	"github.com/congo-pay/tokenledger/internal/balance"
)

func TestTransferBatchTotal(t *testing.T) {
	batch := TransferBatch{{Beneficiary: 1, Amount: 10}, {Beneficiary: 2, Amount: 15}}
	if got := batch.TotalAmount(); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}

	overflow := TransferBatch{{Beneficiary: 1, Amount: balance.Max}, {Beneficiary: 2, Amount: 1}}
	if got := overflow.TotalAmount(); got != balance.Max {
		t.Fatalf("expected Max, got %d", got)
	}

	if got := TransferBatch(nil).TotalAmount(); got != 0 {
		t.Fatalf("expected 0 for empty batch, got %d", got)
	}
}

func TestCreditsByBeneficiary(t *testing.T) {
	batch := TransferBatch{
		{Beneficiary: 3, Amount: 1},
		{Beneficiary: 1, Amount: 2},
		{Beneficiary: 3, Amount: 4},
	}
	got := batch.CreditsByBeneficiary()
	want := []TransferOutput{{Beneficiary: 3, Amount: 5}, {Beneficiary: 1, Amount: 2}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("credit %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestTransferBatchCheckedTotal(t *testing.T) {
	total, ok := TransferBatch{{Beneficiary: 1, Amount: balance.Max - 5}, {Beneficiary: 2, Amount: 5}}.CheckedTotal()
	if !ok || total != balance.Max {
		t.Fatalf("expected exact Max, got %d ok=%v", total, ok)
	}

	if _, ok := (TransferBatch{{Beneficiary: 1, Amount: balance.Max}, {Beneficiary: 2, Amount: 5}}).CheckedTotal(); ok {
		t.Fatal("expected overflow to be reported")
	}

	if total, ok := TransferBatch(nil).CheckedTotal(); !ok || total != 0 {
		t.Fatalf("expected 0 for empty batch, got %d ok=%v", total, ok)
	}
}
