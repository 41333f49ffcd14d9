package token

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/chain"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/logging"
	"github.com/congo-pay/tokenledger/internal/merkle"
	"github.com/congo-pay/tokenledger/internal/notification"
)

type testSink struct {
	mu     sync.Mutex
	events []notification.Event
}

func (s *testSink) Publish(_ context.Context, e notification.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *testSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *testSink) has(kind string) bool {
	for _, k := range s.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type fixture struct {
	svc    *Service
	repo   ledger.Repository
	height *chain.Counter
	sink   *testSink
}

func newFixture(t *testing.T, dust DustPolicy) fixture {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	height := chain.NewCounter(0)
	sink := &testSink{}
	svc, err := NewService(Options{
		Repository: repo,
		Height:     height,
		Sink:       sink,
		Dust:       dust,
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{svc: svc, repo: repo, height: height, sink: sink}
}

func (f fixture) createToken(t *testing.T, issuer ledger.AccountID, params ledger.IssuanceParams) ledger.TokenID {
	t.Helper()
	id, _, err := f.svc.CreateToken(context.Background(), issuer, params)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return id
}

func (f fixture) free(t *testing.T, token ledger.TokenID, account ledger.AccountID) balance.Balance {
	t.Helper()
	rec, err := f.svc.Account(context.Background(), token, account)
	if err != nil {
		t.Fatalf("account %d: %v", account, err)
	}
	return rec.FreeBalance
}

func (f fixture) issuance(t *testing.T, token ledger.TokenID) balance.Balance {
	t.Helper()
	rec, err := f.svc.Token(context.Background(), token)
	if err != nil {
		t.Fatalf("token %d: %v", token, err)
	}
	return rec.TotalIssuance
}

func (f fixture) assertConserved(t *testing.T, token ledger.TokenID) {
	t.Helper()
	holders, err := f.repo.Holders(context.Background(), token)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	sum := balance.Zero
	for account, rec := range holders {
		var ok bool
		if sum, ok = sum.CheckedAdd(rec.Total()); !ok {
			t.Fatalf("holder totals overflow at account %v", account)
		}
	}
	if got := f.issuance(t, token); got != sum {
		t.Fatalf("issuance %s does not match holder total %s", got, sum)
	}
}

func TestNewServiceRequiresDustPolicy(t *testing.T) {
	_, err := NewService(Options{Repository: ledger.NewMemoryRepository(), Height: chain.NewCounter(0)})
	if err == nil {
		t.Fatal("expected error without dust policy")
	}
}

func TestCreateTokenCreditsIssuer(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 10})
	if id != 1 {
		t.Fatalf("expected first token id 1, got %d", id)
	}
	if got := f.free(t, id, 1); got != 1000 {
		t.Fatalf("expected issuer to hold 1000, got %s", got)
	}
	if !f.sink.has(notification.KindTokenCreated) {
		t.Fatalf("expected token_created event, got %v", f.sink.kinds())
	}

	second := f.createToken(t, 1, ledger.IssuanceParams{})
	if second != 2 {
		t.Fatalf("expected second token id 2, got %d", second)
	}
	if _, err := f.svc.Account(context.Background(), second, 1); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("zero issuance must not create an issuer account, got %v", err)
	}

	if _, _, err := f.svc.CreateToken(context.Background(), 1, ledger.IssuanceParams{InitialIssuance: 5, ExistentialDeposit: 10}); !errors.Is(err, ledger.ErrIssuanceBelowDeposit) {
		t.Fatalf("expected ErrIssuanceBelowDeposit, got %v", err)
	}
}

func TestTransferReducesSender(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 10})

	res, err := f.svc.Transfer(context.Background(), TransferRequest{
		Token:  id,
		Sender: 1,
		Outputs: ledger.TransferBatch{
			{Beneficiary: 2, Amount: 300},
			{Beneficiary: 3, Amount: 200},
			{Beneficiary: 2, Amount: 50},
		},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.SenderRemoved || res.Sender.FreeBalance != 450 {
		t.Fatalf("unexpected sender result %+v", res)
	}
	if got := f.free(t, id, 2); got != 350 {
		t.Fatalf("expected 350 for account 2, got %s", got)
	}
	if got := f.free(t, id, 3); got != 200 {
		t.Fatalf("expected 200 for account 3, got %s", got)
	}
	if got := f.issuance(t, id); got != 1000 {
		t.Fatalf("transfer must not change issuance, got %s", got)
	}
	f.assertConserved(t, id)
}

func TestTransferRemovesSenderAndBurnsDust(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 10})

	res, err := f.svc.Transfer(context.Background(), TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 995}},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.SenderRemoved || res.Dust != 5 {
		t.Fatalf("expected sender removal with dust 5, got %+v", res)
	}
	if _, err := f.svc.Account(context.Background(), id, 1); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected sender record to be deleted, got %v", err)
	}
	if got := f.issuance(t, id); got != 995 {
		t.Fatalf("expected burned dust to leave issuance 995, got %s", got)
	}
	if !f.sink.has(notification.KindAccountRemoved) {
		t.Fatalf("expected account_removed event, got %v", f.sink.kinds())
	}
	f.assertConserved(t, id)
}

func TestTransferSweepsDustToTreasury(t *testing.T) {
	const treasury ledger.AccountID = 99
	f := newFixture(t, TreasuryDust{Account: treasury})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 10})
	if _, err := f.svc.Mint(context.Background(), id, treasury, 10); err != nil {
		t.Fatalf("mint treasury: %v", err)
	}

	if _, err := f.svc.Transfer(context.Background(), TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 995}},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.free(t, id, treasury); got != 15 {
		t.Fatalf("expected treasury to receive dust 5, got %s", got)
	}
	if got := f.issuance(t, id); got != 1010 {
		t.Fatalf("treasury sweep must keep issuance, got %s", got)
	}
	f.assertConserved(t, id)
}

func TestTreasuryDustBurnsWithoutTreasuryRecord(t *testing.T) {
	const treasury ledger.AccountID = 99
	f := newFixture(t, TreasuryDust{Account: treasury})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 10})
	ctx := context.Background()

	res, err := f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 995}},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.SenderRemoved || res.Dust != 5 {
		t.Fatalf("expected removal with dust 5, got %+v", res)
	}
	if _, err := f.svc.Account(ctx, id, treasury); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("dust must not open a treasury record below the deposit, got %v", err)
	}
	if got := f.issuance(t, id); got != 995 {
		t.Fatalf("expected dust to be burned, issuance %s", got)
	}

	holders, err := f.repo.Holders(ctx, id)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	for account, rec := range holders {
		if rec.Total() < 10 {
			t.Fatalf("account %v persists below the deposit: %+v", account, rec)
		}
	}
	f.assertConserved(t, id)
}

func TestTransferRejectsOverflowingBatch(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: balance.Max})
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: balance.Max}, {Beneficiary: 3, Amount: 5}},
	})
	if !errors.Is(err, ErrBatchOverflow) {
		t.Fatalf("expected ErrBatchOverflow, got %v", err)
	}
	for _, acc := range []ledger.AccountID{2, 3} {
		if _, err := f.svc.Account(ctx, id, acc); !errors.Is(err, ledger.ErrAccountNotFound) {
			t.Fatalf("beneficiary %d must not exist, got %v", acc, err)
		}
	}
	if got := f.free(t, id, 1); got != balance.Max {
		t.Fatalf("sender must be untouched, got %s", got)
	}
	f.assertConserved(t, id)

	if _, err := f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: balance.Max - 5}, {Beneficiary: 3, Amount: 5}},
	}); err != nil {
		t.Fatalf("exact Max total must pass: %v", err)
	}
	f.assertConserved(t, id)
}

func TestMintRejectsIssuanceOverflow(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: balance.Max - 5})
	ctx := context.Background()

	if _, err := f.svc.Mint(ctx, id, 2, 6); !errors.Is(err, ErrIssuanceOverflow) {
		t.Fatalf("expected ErrIssuanceOverflow, got %v", err)
	}
	if _, err := f.svc.Account(ctx, id, 2); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("rejected mint must not create an account, got %v", err)
	}
	if _, err := f.svc.Mint(ctx, id, 2, 5); err != nil {
		t.Fatalf("mint up to Max: %v", err)
	}
	f.assertConserved(t, id)
}

func TestTransferIsAllOrNothing(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100, ExistentialDeposit: 10})
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 60}, {Beneficiary: 3, Amount: 60}},
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	_, err = f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 50}, {Beneficiary: 3, Amount: 5}},
	})
	if !errors.Is(err, ErrBelowExistentialDeposit) {
		t.Fatalf("expected ErrBelowExistentialDeposit, got %v", err)
	}

	if got := f.free(t, id, 1); got != 100 {
		t.Fatalf("sender must be untouched after rejected batches, got %s", got)
	}
	for _, acc := range []ledger.AccountID{2, 3} {
		if _, err := f.svc.Account(ctx, id, acc); !errors.Is(err, ledger.ErrAccountNotFound) {
			t.Fatalf("beneficiary %d must not exist, got %v", acc, err)
		}
	}
	if f.sink.has(notification.KindTransferred) {
		t.Fatal("rejected batches must not publish events")
	}
}

func TestTransferRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100})
	ctx := context.Background()

	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 1}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 1, Outputs: ledger.TransferBatch{{Beneficiary: 2}}}); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: 42, Sender: 1, Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 1}}}); !errors.Is(err, ledger.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 7, Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 1}}}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected missing sender to have no balance, got %v", err)
	}
}

func TestRestrictedTransferRequiresProof(t *testing.T) {
	f := newFixture(t, BurnDust{})
	ctx := context.Background()

	members := []ledger.AccountID{1, 2, 3}
	payloads := make([][]byte, len(members))
	for i, m := range members {
		payloads[i] = m.Encode()
	}
	tree, err := merkle.Build(payloads)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	id := f.createToken(t, 1, ledger.IssuanceParams{
		InitialIssuance: 1000,
		TransferPolicy:  ledger.Restricted{Commitment: tree.Root()},
	})
	outputs := ledger.TransferBatch{{Beneficiary: 4, Amount: 10}}

	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 1, Outputs: outputs}); !errors.Is(err, ErrTransferNotPermitted) {
		t.Fatalf("expected missing proof to be rejected, got %v", err)
	}

	otherProof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 1, Outputs: outputs, Proof: otherProof}); !errors.Is(err, ErrTransferNotPermitted) {
		t.Fatalf("expected another member's proof to be rejected, got %v", err)
	}

	proof, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 1, Outputs: outputs, Proof: proof}); err != nil {
		t.Fatalf("expected member transfer to pass, got %v", err)
	}
	if got := f.free(t, id, 4); got != 10 {
		t.Fatalf("expected beneficiary 4 to hold 10, got %s", got)
	}

	if _, err := f.svc.SetTransferPolicy(ctx, id, ledger.Open{}); err != nil {
		t.Fatalf("open policy: %v", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{Token: id, Sender: 4, Outputs: ledger.TransferBatch{{Beneficiary: 5, Amount: 5}}}); err != nil {
		t.Fatalf("expected open transfer without proof, got %v", err)
	}
	if !f.sink.has(notification.KindPolicyChanged) {
		t.Fatalf("expected policy_changed event, got %v", f.sink.kinds())
	}
}

func TestSetTransferPolicyRejectsEmptyCommitment(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 10})
	if _, err := f.svc.SetTransferPolicy(context.Background(), id, ledger.Restricted{}); !errors.Is(err, ledger.ErrEmptyCommitment) {
		t.Fatalf("expected ErrEmptyCommitment, got %v", err)
	}
}

func TestMintAndBurn(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100, ExistentialDeposit: 10})
	ctx := context.Background()

	if _, err := f.svc.Mint(ctx, id, 2, 5); !errors.Is(err, ErrBelowExistentialDeposit) {
		t.Fatalf("expected ErrBelowExistentialDeposit, got %v", err)
	}
	if _, err := f.svc.Mint(ctx, id, 2, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	rec, err := f.svc.Mint(ctx, id, 2, 50)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if rec.FreeBalance != 50 || f.issuance(t, id) != 150 {
		t.Fatalf("unexpected mint result %+v issuance %s", rec, f.issuance(t, id))
	}
	if _, err := f.svc.Mint(ctx, id, 2, 1); err != nil {
		t.Fatalf("top up of existing account must skip the deposit check: %v", err)
	}

	res, err := f.svc.Burn(ctx, id, 2, 20)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if res.SenderRemoved || res.Sender.FreeBalance != 31 {
		t.Fatalf("unexpected burn result %+v", res)
	}

	res, err = f.svc.Burn(ctx, id, 2, 25)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !res.SenderRemoved || res.Dust != 6 {
		t.Fatalf("expected removal with dust 6, got %+v", res)
	}
	if got := f.issuance(t, id); got != 100 {
		t.Fatalf("expected issuance 100 after burning 45 and 6 dust, got %s", got)
	}
	if _, err := f.svc.Burn(ctx, id, 2, 1); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected removed account to have no balance, got %v", err)
	}
	f.assertConserved(t, id)
}

func TestPatronageAccrualAndClaim(t *testing.T) {
	f := newFixture(t, BurnDust{})
	ctx := context.Background()
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100, ExistentialDeposit: 10, PatronageRate: 5})

	if _, err := f.height.Advance(ctx, 10); err != nil {
		t.Fatalf("advance: %v", err)
	}
	outstanding, _, err := f.svc.OutstandingPatronage(ctx, id)
	if err != nil || outstanding != 50 {
		t.Fatalf("expected 50 outstanding, got %s (%v)", outstanding, err)
	}

	state, err := f.svc.SetPatronageRate(ctx, id, 2)
	if err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if state.Tally != 50 || state.LastUpdate != 10 || state.Rate != 2 {
		t.Fatalf("unexpected patronage state %+v", state)
	}

	if _, err := f.height.Advance(ctx, 5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	claimed, err := f.svc.ClaimPatronage(ctx, id, 7)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != 60 {
		t.Fatalf("expected 60 claimed, got %s", claimed)
	}
	if got := f.free(t, id, 7); got != 60 {
		t.Fatalf("expected beneficiary to hold 60, got %s", got)
	}
	if got := f.issuance(t, id); got != 160 {
		t.Fatalf("expected claim to mint, issuance %s", got)
	}
	outstanding, state, err = f.svc.OutstandingPatronage(ctx, id)
	if err != nil || !outstanding.IsZero() || state.LastUpdate != 15 {
		t.Fatalf("expected reset accrual, got %s %+v (%v)", outstanding, state, err)
	}

	claimed, err = f.svc.ClaimPatronage(ctx, id, 8)
	if err != nil || !claimed.IsZero() {
		t.Fatalf("expected empty claim, got %s (%v)", claimed, err)
	}
	if _, err := f.svc.Account(ctx, id, 8); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("empty claim must not create an account, got %v", err)
	}
	f.assertConserved(t, id)
}

func TestConcurrentTransfersConserveIssuance(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 1000, ExistentialDeposit: 1})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), TransferRequest{
				Token:   id,
				Sender:  1,
				Outputs: ledger.TransferBatch{{Beneficiary: ledger.AccountID(100 + i), Amount: 10}},
			})
			if err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := f.free(t, id, 1); got != 500 {
		t.Fatalf("expected sender to keep 500, got %s", got)
	}
	f.assertConserved(t, id)
}

func TestParseDustPolicy(t *testing.T) {
	treasury := ledger.AccountID(9)
	if p, err := ParseDustPolicy("burn", nil); err != nil || p.Name() != "burn" {
		t.Fatalf("expected burn policy, got %v (%v)", p, err)
	}
	p, err := ParseDustPolicy("Treasury", &treasury)
	if err != nil {
		t.Fatalf("parse treasury: %v", err)
	}
	if td, ok := p.(TreasuryDust); !ok || td.Account != 9 {
		t.Fatalf("expected treasury 9, got %#v", p)
	}
	for _, name := range []string{"", "treasury", "nope"} {
		if _, err := ParseDustPolicy(name, nil); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestReservedBalanceKeepsSenderAlive(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100, ExistentialDeposit: 10})
	ledger.SeedAccount(f.repo, ledger.AccountKey{Token: id, Account: 1}, ledger.AccountRecord{FreeBalance: 80, ReservedBalance: 20})

	if _, err := f.svc.Transfer(context.Background(), TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 90}},
	}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("reserved funds must not be spendable, got %v", err)
	}

	res, err := f.svc.Transfer(context.Background(), TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 80}},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.SenderRemoved || res.Sender.FreeBalance != 0 || res.Sender.ReservedBalance != 20 {
		t.Fatalf("expected reserved balance to keep the sender, got %+v", res)
	}
	f.assertConserved(t, id)
}

func TestReserveAndUnreserve(t *testing.T) {
	f := newFixture(t, BurnDust{})
	id := f.createToken(t, 1, ledger.IssuanceParams{InitialIssuance: 100, ExistentialDeposit: 10})
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, id, 1, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := f.svc.Reserve(ctx, id, 1, 101); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := f.svc.Reserve(ctx, id, 2, 1); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	rec, err := f.svc.Reserve(ctx, id, 1, 95)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rec.FreeBalance != 5 || rec.ReservedBalance != 95 {
		t.Fatalf("unexpected record after reserve %+v", rec)
	}
	if !f.sink.has(notification.KindReserved) {
		t.Fatalf("expected reserved event, got %v", f.sink.kinds())
	}

	res, err := f.svc.Transfer(ctx, TransferRequest{
		Token:   id,
		Sender:  1,
		Outputs: ledger.TransferBatch{{Beneficiary: 2, Amount: 5}},
	})
	if !errors.Is(err, ErrBelowExistentialDeposit) {
		t.Fatalf("expected credit below deposit to fail, got %v (%+v)", err, res)
	}
	res, err = f.svc.Burn(ctx, id, 1, 5)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if res.SenderRemoved || res.Sender.ReservedBalance != 95 {
		t.Fatalf("reserved balance must keep the account alive, got %+v", res)
	}

	rec, err = f.svc.Unreserve(ctx, id, 1, 200)
	if err != nil {
		t.Fatalf("unreserve: %v", err)
	}
	if rec.FreeBalance != 95 || rec.ReservedBalance != 0 {
		t.Fatalf("unreserve must release at most the reserved balance, got %+v", rec)
	}
	if !f.sink.has(notification.KindUnreserved) {
		t.Fatalf("expected unreserved event, got %v", f.sink.kinds())
	}
	f.assertConserved(t, id)
}
