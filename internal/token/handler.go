package token

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/merkle"
	"github.com/congo-pay/tokenledger/internal/middleware"
)

// Handler exposes the token HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a token HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type policyBody struct {
	Kind       string       `json:"kind"`
	Commitment *merkle.Hash `json:"commitment,omitempty"`
}

func (p policyBody) decode() (ledger.TransferPolicy, error) {
	return ledger.DecodePolicy(p.Kind, p.Commitment)
}

func encodePolicyBody(p ledger.TransferPolicy) policyBody {
	kind, commitment := ledger.EncodePolicy(p)
	return policyBody{Kind: kind, Commitment: commitment}
}

type createTokenRequest struct {
	InitialIssuance    balance.Balance      `json:"initial_issuance"`
	ExistentialDeposit balance.Balance      `json:"existential_deposit"`
	InitialState       ledger.OfferingState `json:"initial_state"`
	Symbol             merkle.Hash          `json:"symbol"`
	TransferPolicy     *policyBody          `json:"transfer_policy"`
	PatronageRate      balance.Balance      `json:"patronage_rate"`
}

type tokenResponse struct {
	TokenID            ledger.TokenID        `json:"token_id"`
	TotalIssuance      balance.Balance       `json:"total_issuance"`
	ExistentialDeposit balance.Balance       `json:"existential_deposit"`
	IssuanceState      ledger.OfferingState  `json:"issuance_state"`
	TransferPolicy     policyBody            `json:"transfer_policy"`
	Patronage          ledger.PatronageState `json:"patronage"`
	Symbol             merkle.Hash           `json:"symbol"`
}

func newTokenResponse(id ledger.TokenID, rec ledger.TokenRecord) tokenResponse {
	return tokenResponse{
		TokenID:            id,
		TotalIssuance:      rec.TotalIssuance,
		ExistentialDeposit: rec.ExistentialDeposit,
		IssuanceState:      rec.IssuanceState,
		TransferPolicy:     encodePolicyBody(rec.TransferPolicy),
		Patronage:          rec.Patronage,
		Symbol:             rec.Symbol,
	}
}

type transferRequest struct {
	Outputs ledger.TransferBatch `json:"outputs"`
	Proof   merkle.Proof         `json:"proof"`
}

type amountRequest struct {
	Amount balance.Balance `json:"amount"`
}

type rateRequest struct {
	Rate balance.Balance `json:"rate"`
}

// Create registers a token issued to the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req createTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	params := ledger.IssuanceParams{
		InitialIssuance:    req.InitialIssuance,
		ExistentialDeposit: req.ExistentialDeposit,
		InitialState:       req.InitialState,
		Symbol:             req.Symbol,
		PatronageRate:      req.PatronageRate,
	}
	if req.TransferPolicy != nil {
		policy, err := req.TransferPolicy.decode()
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		params.TransferPolicy = policy
	}

	id, rec, err := h.service.CreateToken(c.UserContext(), caller, params)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(newTokenResponse(id, rec))
}

// Get returns the token record.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	rec, err := h.service.Token(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(newTokenResponse(id, rec))
}

// Account returns one holder's balances.
func (h *Handler) Account(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	raw, err := strconv.ParseUint(c.Params("accountId"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid account id")
	}
	account := ledger.AccountID(raw)
	rec, err := h.service.Account(c.UserContext(), id, account)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":         id,
		"account_id":       account,
		"free_balance":     rec.FreeBalance,
		"reserved_balance": rec.ReservedBalance,
		"total":            rec.Total(),
	})
}

// Transfer sends a batch out of the caller's free balance.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferRequest{
		Token:   id,
		Sender:  caller,
		Outputs: req.Outputs,
		Proof:   req.Proof,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"token_id":       id,
		"sender":         caller,
		"free_balance":   res.Sender.FreeBalance,
		"sender_removed": res.SenderRemoved,
		"dust":           res.Dust,
		"block":          res.Block,
	})
}

// Mint credits new tokens to the caller.
func (h *Handler) Mint(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.service.Mint(c.UserContext(), id, caller, req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"token_id":     id,
		"account_id":   caller,
		"free_balance": rec.FreeBalance,
	})
}

// Burn destroys tokens held by the caller.
func (h *Handler) Burn(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Burn(c.UserContext(), id, caller, req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":        id,
		"account_id":      caller,
		"free_balance":    res.Sender.FreeBalance,
		"account_removed": res.SenderRemoved,
		"dust":            res.Dust,
	})
}

// Reserve sets aside part of the caller's free balance.
func (h *Handler) Reserve(c *fiber.Ctx) error {
	return h.moveReserved(c, h.service.Reserve)
}

// Unreserve releases part of the caller's reserved balance.
func (h *Handler) Unreserve(c *fiber.Ctx) error {
	return h.moveReserved(c, h.service.Unreserve)
}

type reserveFunc func(context.Context, ledger.TokenID, ledger.AccountID, balance.Balance) (ledger.AccountRecord, error)

func (h *Handler) moveReserved(c *fiber.Ctx, move reserveFunc) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := move(c.UserContext(), id, caller, req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":         id,
		"account_id":       caller,
		"free_balance":     rec.FreeBalance,
		"reserved_balance": rec.ReservedBalance,
	})
}

// SetTransferPolicy replaces the token's transfer policy.
func (h *Handler) SetTransferPolicy(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	var req policyBody
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	policy, err := req.decode()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.service.SetTransferPolicy(c.UserContext(), id, policy)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(newTokenResponse(id, rec))
}

// Patronage reports the outstanding patronage credit.
func (h *Handler) Patronage(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	outstanding, state, err := h.service.OutstandingPatronage(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":    id,
		"outstanding": outstanding,
		"rate":        state.Rate,
		"tally":       state.Tally,
		"last_update": state.LastUpdate,
	})
}

// SetPatronageRate changes the accrual rate from the current block on.
func (h *Handler) SetPatronageRate(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	state, err := h.service.SetPatronageRate(c.UserContext(), id, req.Rate)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":    id,
		"rate":        state.Rate,
		"tally":       state.Tally,
		"last_update": state.LastUpdate,
	})
}

// ClaimPatronage pays the outstanding credit to the caller.
func (h *Handler) ClaimPatronage(c *fiber.Ctx) error {
	id, err := tokenParam(c)
	if err != nil {
		return err
	}
	caller, err := callerAccount(c)
	if err != nil {
		return err
	}
	claimed, err := h.service.ClaimPatronage(c.UserContext(), id, caller)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token_id":   id,
		"account_id": caller,
		"claimed":    claimed,
	})
}

func tokenParam(c *fiber.Ctx) (ledger.TokenID, error) {
	raw, err := strconv.ParseUint(c.Params("tokenId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid token id")
	}
	return ledger.TokenID(raw), nil
}

func callerAccount(c *fiber.Ctx) (ledger.AccountID, error) {
	caller, ok := middleware.CallerAccount(c)
	if !ok {
		return 0, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return caller, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrTokenNotFound):
		return fiber.NewError(http.StatusNotFound, "token not found")
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrTransferNotPermitted):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrIssuanceBelowDeposit),
		errors.Is(err, ledger.ErrEmptyCommitment),
		errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrBelowExistentialDeposit),
		errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrBatchOverflow),
		errors.Is(err, ErrIssuanceOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
