// Package token hosts the ledger state machine: it serializes every state
// transition, applies it to the repository as one changeset and publishes the
// resulting events.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/chain"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/merkle"
	"github.com/congo-pay/tokenledger/internal/metrics"
	"github.com/congo-pay/tokenledger/internal/notification"
)

var (
	// ErrTransferNotPermitted is returned when a restricted token's sender
	// cannot prove allow-list membership.
	ErrTransferNotPermitted = errors.New("transfer not permitted")
	// ErrEmptyBatch rejects a transfer with no outputs.
	ErrEmptyBatch = errors.New("transfer batch is empty")
	// ErrBelowExistentialDeposit rejects a credit that would create an account
	// holding less than the existential deposit.
	ErrBelowExistentialDeposit = errors.New("credit below existential deposit")
	// ErrZeroAmount rejects zero mint, burn, reserve and output amounts.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrBatchOverflow rejects a transfer whose outputs sum past balance.Max.
	ErrBatchOverflow = errors.New("transfer batch total overflows")
	// ErrIssuanceOverflow rejects a mint or patronage claim that would push
	// the total issuance past balance.Max.
	ErrIssuanceOverflow = errors.New("total issuance overflows")
)

// Service owns every state transition of the ledger.
type Service struct {
	mu      sync.Mutex
	repo    ledger.Repository
	height  chain.HeightSource
	sink    notification.Sink
	dust    DustPolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Options configures a Service. Repository, Height and Dust are required.
type Options struct {
	Repository ledger.Repository
	Height     chain.HeightSource
	Sink       notification.Sink
	Dust       DustPolicy
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewService constructs the service.
func NewService(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, errors.New("token service requires a repository")
	}
	if opts.Height == nil {
		return nil, errors.New("token service requires a height source")
	}
	if opts.Dust == nil {
		return nil, errors.New("token service requires a dust policy")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    opts.Repository,
		height:  opts.Height,
		sink:    opts.Sink,
		dust:    opts.Dust,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// TransferRequest moves Outputs out of Sender's free balance. Proof is only
// consulted for restricted tokens.
type TransferRequest struct {
	Token   ledger.TokenID
	Sender  ledger.AccountID
	Outputs ledger.TransferBatch
	Proof   merkle.Proof
}

// TransferResult reports the sender's fate after a transfer.
type TransferResult struct {
	Sender        ledger.AccountRecord
	SenderRemoved bool
	Dust          balance.Balance
	Block         ledger.BlockNumber
}

// CreateToken registers a new token and credits the initial issuance to issuer.
func (s *Service) CreateToken(ctx context.Context, issuer ledger.AccountID, params ledger.IssuanceParams) (ledger.TokenID, ledger.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, err := s.currentBlock(ctx)
	if err != nil {
		return 0, ledger.TokenRecord{}, err
	}
	record, err := params.TryBuild(block)
	if err != nil {
		return 0, ledger.TokenRecord{}, err
	}
	id, err := s.repo.NextTokenID(ctx)
	if err != nil {
		return 0, ledger.TokenRecord{}, fmt.Errorf("allocate token id: %w", err)
	}

	cs := &ledger.Changeset{}
	cs.SetToken(id, record)
	if !record.TotalIssuance.IsZero() {
		cs.SetAccount(ledger.AccountKey{Token: id, Account: issuer}, ledger.AccountRecord{FreeBalance: record.TotalIssuance})
	}
	if err := s.repo.Apply(ctx, cs); err != nil {
		return 0, ledger.TokenRecord{}, fmt.Errorf("store token: %w", err)
	}

	kind, _ := ledger.EncodePolicy(record.TransferPolicy)
	s.publish(ctx, notification.NewEvent(notification.KindTokenCreated, id, block, map[string]any{
		"total_issuance":      record.TotalIssuance,
		"existential_deposit": record.ExistentialDeposit,
		"issuance_state":      record.IssuanceState.String(),
		"transfer_policy":     kind,
		"patronage_rate":      record.Patronage.Rate,
	}).ForAccount(issuer))
	s.metrics.Minted(record.TotalIssuance)
	s.logger.Info("token created",
		slog.Uint64("token_id", uint64(id)),
		slog.Uint64("issuer", uint64(issuer)),
		slog.String("total_issuance", record.TotalIssuance.String()),
	)
	return id, record, nil
}

// Mint credits amount to beneficiary and grows the total issuance.
func (s *Service) Mint(ctx context.Context, token ledger.TokenID, beneficiary ledger.AccountID, amount balance.Balance) (ledger.AccountRecord, error) {
	if amount.IsZero() {
		return ledger.AccountRecord{}, ErrZeroAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return ledger.AccountRecord{}, err
	}

	if _, ok := record.TotalIssuance.CheckedAdd(amount); !ok {
		return ledger.AccountRecord{}, ErrIssuanceOverflow
	}

	staged := newStaging(s.repo, token, record.ExistentialDeposit)
	if err := staged.credit(ctx, beneficiary, amount); err != nil {
		return ledger.AccountRecord{}, err
	}
	before := record.TotalIssuance
	record.IncreaseIssuanceBy(amount)

	cs := &ledger.Changeset{}
	cs.SetToken(token, record)
	staged.writeTo(cs)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return ledger.AccountRecord{}, fmt.Errorf("apply mint: %w", err)
	}

	after, _ := staged.record(beneficiary)
	s.publish(ctx, notification.NewEvent(notification.KindMinted, token, block, map[string]any{
		"amount":                amount,
		"total_issuance_before": before,
		"total_issuance_after":  record.TotalIssuance,
		"free_balance_after":    after.FreeBalance,
	}).ForAccount(beneficiary))
	s.metrics.Minted(amount)
	return after, nil
}

// Burn destroys amount from account's free balance. An account left under the
// existential deposit is removed and its dust disposed of by the dust policy.
func (s *Service) Burn(ctx context.Context, token ledger.TokenID, account ledger.AccountID, amount balance.Balance) (TransferResult, error) {
	if amount.IsZero() {
		return TransferResult{}, ErrZeroAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return TransferResult{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return TransferResult{}, err
	}

	staged := newStaging(s.repo, token, record.ExistentialDeposit)
	outcome, err := staged.debit(ctx, account, amount)
	if err != nil {
		return TransferResult{}, err
	}
	before := record.TotalIssuance
	record.DecreaseIssuanceBy(amount)
	dust, disposal, err := s.disposeDust(ctx, staged, &record, outcome)
	if err != nil {
		return TransferResult{}, err
	}

	cs := &ledger.Changeset{}
	cs.SetToken(token, record)
	staged.writeTo(cs)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return TransferResult{}, fmt.Errorf("apply burn: %w", err)
	}

	result := s.senderResult(staged, account, outcome, dust, block)
	s.publish(ctx, notification.NewEvent(notification.KindBurned, token, block, map[string]any{
		"amount":                amount,
		"total_issuance_before": before,
		"total_issuance_after":  record.TotalIssuance,
	}).ForAccount(account))
	s.afterDecrease(ctx, token, account, block, outcome, disposal)
	s.metrics.Burned(amount)
	return result, nil
}

// Transfer debits the whole batch from the sender at once and, only when the
// debit succeeds, credits every beneficiary.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, req.Token)
	if err != nil {
		return TransferResult{}, err
	}
	if err := s.checkPolicy(record.TransferPolicy, req.Sender, req.Proof); err != nil {
		s.metrics.TransferRejected(metrics.ReasonNotPermitted)
		return TransferResult{}, err
	}
	if len(req.Outputs) == 0 {
		s.metrics.TransferRejected(metrics.ReasonInvalid)
		return TransferResult{}, ErrEmptyBatch
	}
	for _, out := range req.Outputs {
		if out.Amount.IsZero() {
			s.metrics.TransferRejected(metrics.ReasonInvalid)
			return TransferResult{}, ErrZeroAmount
		}
	}
	// Every output is credited in full, so the debit must be the exact sum.
	total, ok := req.Outputs.CheckedTotal()
	if !ok {
		s.metrics.TransferRejected(metrics.ReasonInvalid)
		return TransferResult{}, ErrBatchOverflow
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return TransferResult{}, err
	}

	staged := newStaging(s.repo, req.Token, record.ExistentialDeposit)
	outcome, err := staged.debit(ctx, req.Sender, total)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			s.metrics.TransferRejected(metrics.ReasonInsufficientBalance)
		}
		return TransferResult{}, err
	}
	for _, credit := range req.Outputs.CreditsByBeneficiary() {
		if err := staged.credit(ctx, credit.Beneficiary, credit.Amount); err != nil {
			if errors.Is(err, ErrBelowExistentialDeposit) {
				s.metrics.TransferRejected(metrics.ReasonBelowDeposit)
			}
			return TransferResult{}, err
		}
	}
	issuance := record.TotalIssuance
	dust, disposal, err := s.disposeDust(ctx, staged, &record, outcome)
	if err != nil {
		return TransferResult{}, err
	}

	cs := &ledger.Changeset{}
	if record.TotalIssuance != issuance {
		cs.SetToken(req.Token, record)
	}
	staged.writeTo(cs)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return TransferResult{}, fmt.Errorf("apply transfer: %w", err)
	}

	result := s.senderResult(staged, req.Sender, outcome, dust, block)
	s.publish(ctx, notification.NewEvent(notification.KindTransferred, req.Token, block, map[string]any{
		"outputs":           req.Outputs,
		"total":             total,
		"sender_free_after": result.Sender.FreeBalance,
		"sender_removed":    result.SenderRemoved,
	}).ForAccount(req.Sender))
	s.afterDecrease(ctx, req.Token, req.Sender, block, outcome, disposal)
	s.metrics.TransferApplied()
	s.logger.Debug("transfer applied",
		slog.Uint64("token_id", uint64(req.Token)),
		slog.Uint64("sender", uint64(req.Sender)),
		slog.Int("outputs", len(req.Outputs)),
		slog.Bool("sender_removed", result.SenderRemoved),
	)
	return result, nil
}

// SetTransferPolicy replaces the transfer policy of token. A nil policy is Open.
func (s *Service) SetTransferPolicy(ctx context.Context, token ledger.TokenID, policy ledger.TransferPolicy) (ledger.TokenRecord, error) {
	switch p := policy.(type) {
	case nil:
		policy = ledger.Open{}
	case ledger.Open:
	case ledger.Restricted:
		if p.Commitment.IsZero() {
			return ledger.TokenRecord{}, ledger.ErrEmptyCommitment
		}
	default:
		return ledger.TokenRecord{}, fmt.Errorf("unknown transfer policy %T", policy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return ledger.TokenRecord{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return ledger.TokenRecord{}, err
	}
	beforeKind, _ := ledger.EncodePolicy(record.TransferPolicy)
	record.TransferPolicy = policy

	cs := &ledger.Changeset{}
	cs.SetToken(token, record)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return ledger.TokenRecord{}, fmt.Errorf("apply policy: %w", err)
	}

	afterKind, commitment := ledger.EncodePolicy(policy)
	facts := map[string]any{"before": beforeKind, "after": afterKind}
	if commitment != nil {
		facts["commitment"] = commitment.String()
	}
	s.publish(ctx, notification.NewEvent(notification.KindPolicyChanged, token, block, facts))
	return record, nil
}

// SetPatronageRate checkpoints the credit accrued under the current rate and
// switches to rate from the current block on.
func (s *Service) SetPatronageRate(ctx context.Context, token ledger.TokenID, rate balance.Balance) (ledger.PatronageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return ledger.PatronageState{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return ledger.PatronageState{}, err
	}
	before := record.Patronage
	record.Patronage.SetNewRateAtBlock(rate, block)

	cs := &ledger.Changeset{}
	cs.SetToken(token, record)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return ledger.PatronageState{}, fmt.Errorf("apply patronage rate: %w", err)
	}

	s.publish(ctx, notification.NewEvent(notification.KindPatronageRateChanged, token, block, map[string]any{
		"rate_before": before.Rate,
		"rate_after":  rate,
		"tally":       record.Patronage.Tally,
	}))
	return record.Patronage, nil
}

// ClaimPatronage pays the outstanding patronage credit to beneficiary as newly
// minted tokens and restarts accrual at the current block.
func (s *Service) ClaimPatronage(ctx context.Context, token ledger.TokenID, beneficiary ledger.AccountID) (balance.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return balance.Zero, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return balance.Zero, err
	}
	credit := record.Patronage.OutstandingCredit(block)

	staged := newStaging(s.repo, token, record.ExistentialDeposit)
	if !credit.IsZero() {
		if _, ok := record.TotalIssuance.CheckedAdd(credit); !ok {
			return balance.Zero, ErrIssuanceOverflow
		}
		if err := staged.credit(ctx, beneficiary, credit); err != nil {
			return balance.Zero, err
		}
		record.IncreaseIssuanceBy(credit)
	}
	record.Patronage.ResetTallyAtBlock(block)

	cs := &ledger.Changeset{}
	cs.SetToken(token, record)
	staged.writeTo(cs)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return balance.Zero, fmt.Errorf("apply patronage claim: %w", err)
	}

	s.publish(ctx, notification.NewEvent(notification.KindPatronageClaimed, token, block, map[string]any{
		"amount":         credit,
		"total_issuance": record.TotalIssuance,
	}).ForAccount(beneficiary))
	s.metrics.PatronageClaimed(credit)
	return credit, nil
}

// Reserve moves amount from the free to the reserved balance of account.
// Reserved funds cannot be transferred or burned but still count towards the
// existential deposit.
func (s *Service) Reserve(ctx context.Context, token ledger.TokenID, account ledger.AccountID, amount balance.Balance) (ledger.AccountRecord, error) {
	return s.updateReserve(ctx, token, account, amount, notification.KindReserved, func(rec *ledger.AccountRecord) error {
		return rec.ReserveBy(amount)
	})
}

// Unreserve moves up to amount from the reserved back to the free balance of
// account.
func (s *Service) Unreserve(ctx context.Context, token ledger.TokenID, account ledger.AccountID, amount balance.Balance) (ledger.AccountRecord, error) {
	return s.updateReserve(ctx, token, account, amount, notification.KindUnreserved, func(rec *ledger.AccountRecord) error {
		rec.UnreserveBy(amount)
		return nil
	})
}

func (s *Service) updateReserve(ctx context.Context, token ledger.TokenID, account ledger.AccountID, amount balance.Balance, kind string, apply func(*ledger.AccountRecord) error) (ledger.AccountRecord, error) {
	if amount.IsZero() {
		return ledger.AccountRecord{}, ErrZeroAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.Token(ctx, token); err != nil {
		return ledger.AccountRecord{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	key := ledger.AccountKey{Token: token, Account: account}
	rec, err := s.repo.Account(ctx, key)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	before := rec.ReservedBalance
	if err := apply(&rec); err != nil {
		return ledger.AccountRecord{}, err
	}

	cs := &ledger.Changeset{}
	cs.SetAccount(key, rec)
	if err := s.repo.Apply(ctx, cs); err != nil {
		return ledger.AccountRecord{}, fmt.Errorf("apply %s: %w", kind, err)
	}

	s.publish(ctx, notification.NewEvent(kind, token, block, map[string]any{
		"amount":                  amount,
		"reserved_balance_before": before,
		"reserved_balance_after":  rec.ReservedBalance,
		"free_balance_after":      rec.FreeBalance,
	}).ForAccount(account))
	return rec, nil
}

// OutstandingPatronage returns the credit accrued up to the current block.
func (s *Service) OutstandingPatronage(ctx context.Context, token ledger.TokenID) (balance.Balance, ledger.PatronageState, error) {
	record, err := s.repo.Token(ctx, token)
	if err != nil {
		return balance.Zero, ledger.PatronageState{}, err
	}
	block, err := s.currentBlock(ctx)
	if err != nil {
		return balance.Zero, ledger.PatronageState{}, err
	}
	return record.Patronage.OutstandingCredit(block), record.Patronage, nil
}

// Token returns the token record.
func (s *Service) Token(ctx context.Context, id ledger.TokenID) (ledger.TokenRecord, error) {
	return s.repo.Token(ctx, id)
}

// Account returns the account record of a holder. A known token without a
// record for account yields ledger.ErrAccountNotFound.
func (s *Service) Account(ctx context.Context, token ledger.TokenID, account ledger.AccountID) (ledger.AccountRecord, error) {
	if _, err := s.repo.Token(ctx, token); err != nil {
		return ledger.AccountRecord{}, err
	}
	return s.repo.Account(ctx, ledger.AccountKey{Token: token, Account: account})
}

func (s *Service) currentBlock(ctx context.Context) (ledger.BlockNumber, error) {
	block, err := s.height.Current(ctx)
	if err != nil {
		return 0, fmt.Errorf("read block height: %w", err)
	}
	return block, nil
}

func (s *Service) checkPolicy(policy ledger.TransferPolicy, sender ledger.AccountID, proof merkle.Proof) error {
	switch p := policy.(type) {
	case ledger.Open, nil:
		return nil
	case ledger.Restricted:
		ok := merkle.Verify(sender.Encode(), p.Commitment, proof)
		s.metrics.ProofVerified(ok)
		if !ok {
			return ErrTransferNotPermitted
		}
		return nil
	default:
		return fmt.Errorf("unknown transfer policy %T", policy)
	}
}

// disposeDust applies the dust policy to a removal outcome and returns the
// dust amount with the name of the policy that actually took it. Reduce
// outcomes carry no dust.
func (s *Service) disposeDust(ctx context.Context, staged *staging, record *ledger.TokenRecord, outcome ledger.DecreaseOutcome) (balance.Balance, string, error) {
	removed, ok := outcome.(ledger.Remove)
	if !ok || removed.Dust.IsZero() {
		return balance.Zero, s.dust.Name(), nil
	}
	switch p := s.dust.(type) {
	case BurnDust:
		record.DecreaseIssuanceBy(removed.Dust)
		return removed.Dust, p.Name(), nil
	case TreasuryDust:
		treasury, err := staged.get(ctx, p.Account)
		if err != nil {
			return balance.Zero, "", fmt.Errorf("load treasury: %w", err)
		}
		// Dust is always under the deposit, so it may only join a live
		// treasury record. Otherwise it is burned.
		if !treasury.live {
			record.DecreaseIssuanceBy(removed.Dust)
			return removed.Dust, BurnDust{}.Name(), nil
		}
		if err := staged.credit(ctx, p.Account, removed.Dust); err != nil {
			return balance.Zero, "", fmt.Errorf("credit treasury: %w", err)
		}
		return removed.Dust, p.Name(), nil
	default:
		return balance.Zero, "", fmt.Errorf("unknown dust policy %T", s.dust)
	}
}

func (s *Service) senderResult(staged *staging, sender ledger.AccountID, outcome ledger.DecreaseOutcome, dust balance.Balance, block ledger.BlockNumber) TransferResult {
	record, live := staged.record(sender)
	_, removed := outcome.(ledger.Remove)
	return TransferResult{
		Sender:        record,
		SenderRemoved: removed && !live,
		Dust:          dust,
		Block:         block,
	}
}

func (s *Service) afterDecrease(ctx context.Context, token ledger.TokenID, account ledger.AccountID, block ledger.BlockNumber, outcome ledger.DecreaseOutcome, disposal string) {
	removed, ok := outcome.(ledger.Remove)
	if !ok {
		return
	}
	s.publish(ctx, notification.NewEvent(notification.KindAccountRemoved, token, block, map[string]any{
		"dust":        removed.Dust,
		"dust_policy": disposal,
	}).ForAccount(account))
	s.metrics.AccountRemoved(disposal, removed.Dust)
	s.logger.Info("account removed below existential deposit",
		slog.Uint64("token_id", uint64(token)),
		slog.Uint64("account_id", uint64(account)),
		slog.String("dust", removed.Dust.String()),
		slog.String("dust_policy", disposal),
	)
}

func (s *Service) publish(ctx context.Context, event notification.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("publish ledger event failed",
			slog.String("kind", event.Kind),
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
	}
}
