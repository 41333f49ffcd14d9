package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/merkle"
)

// Balances and heights are unsigned 64-bit; they are stored as NUMERIC(20,0)
// and exchanged as decimal text. Ids are stored bit-for-bit in BIGINT.
const schema = `
CREATE TABLE IF NOT EXISTS tokens (
    token_id              BIGINT PRIMARY KEY,
    total_issuance        NUMERIC(20,0) NOT NULL,
    existential_deposit   NUMERIC(20,0) NOT NULL,
    issuance_state        TEXT NOT NULL,
    policy_kind           TEXT NOT NULL,
    policy_commitment     BYTEA,
    patronage_rate        NUMERIC(20,0) NOT NULL,
    patronage_tally       NUMERIC(20,0) NOT NULL,
    patronage_last_update NUMERIC(20,0) NOT NULL,
    symbol                BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS token_accounts (
    token_id         BIGINT NOT NULL REFERENCES tokens (token_id),
    account_id       BIGINT NOT NULL,
    free_balance     NUMERIC(20,0) NOT NULL,
    reserved_balance NUMERIC(20,0) NOT NULL,
    PRIMARY KEY (token_id, account_id)
);`

// PostgresRepository persists token and account records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// Token loads a token record.
func (r *PostgresRepository) Token(ctx context.Context, id TokenID) (TokenRecord, error) {
	const query = `
        SELECT total_issuance::text, existential_deposit::text, issuance_state,
               policy_kind, policy_commitment, patronage_rate::text, patronage_tally::text,
               patronage_last_update::text, symbol
        FROM tokens WHERE token_id = $1`

	var (
		issuance, deposit, state, kind string
		rate, tally, lastUpdate        string
		commitment, symbol             []byte
	)
	err := r.db.QueryRow(ctx, query, int64(id)).Scan(
		&issuance, &deposit, &state, &kind, &commitment, &rate, &tally, &lastUpdate, &symbol)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRecord{}, ErrTokenNotFound
		}
		return TokenRecord{}, err
	}

	var record TokenRecord
	if record.TotalIssuance, err = balance.Parse(issuance); err != nil {
		return TokenRecord{}, err
	}
	if record.ExistentialDeposit, err = balance.Parse(deposit); err != nil {
		return TokenRecord{}, err
	}
	if err := record.IssuanceState.UnmarshalText([]byte(state)); err != nil {
		return TokenRecord{}, err
	}
	var commitHash *merkle.Hash
	if commitment != nil {
		h, err := hashFromBytes(commitment)
		if err != nil {
			return TokenRecord{}, err
		}
		commitHash = &h
	}
	if record.TransferPolicy, err = DecodePolicy(kind, commitHash); err != nil {
		return TokenRecord{}, err
	}
	if record.Patronage.Rate, err = balance.Parse(rate); err != nil {
		return TokenRecord{}, err
	}
	if record.Patronage.Tally, err = balance.Parse(tally); err != nil {
		return TokenRecord{}, err
	}
	height, err := balance.Parse(lastUpdate)
	if err != nil {
		return TokenRecord{}, err
	}
	record.Patronage.LastUpdate = BlockNumber(height)
	if record.Symbol, err = hashFromBytes(symbol); err != nil {
		return TokenRecord{}, err
	}
	return record, nil
}

// Account loads an account record.
func (r *PostgresRepository) Account(ctx context.Context, key AccountKey) (AccountRecord, error) {
	const query = `
        SELECT free_balance::text, reserved_balance::text
        FROM token_accounts WHERE token_id = $1 AND account_id = $2`

	var free, reserved string
	if err := r.db.QueryRow(ctx, query, int64(key.Token), int64(key.Account)).Scan(&free, &reserved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountRecord{}, ErrAccountNotFound
		}
		return AccountRecord{}, err
	}
	return parseAccount(free, reserved)
}

// Holders lists every account record of a token.
func (r *PostgresRepository) Holders(ctx context.Context, token TokenID) (map[AccountID]AccountRecord, error) {
	if _, err := r.Token(ctx, token); err != nil {
		return nil, err
	}

	const query = `
        SELECT account_id, free_balance::text, reserved_balance::text
        FROM token_accounts WHERE token_id = $1`
	rows, err := r.db.Query(ctx, query, int64(token))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[AccountID]AccountRecord)
	for rows.Next() {
		var (
			account        int64
			free, reserved string
		)
		if err := rows.Scan(&account, &free, &reserved); err != nil {
			return nil, err
		}
		record, err := parseAccount(free, reserved)
		if err != nil {
			return nil, err
		}
		out[AccountID(uint64(account))] = record
	}
	return out, rows.Err()
}

// NextTokenID returns one past the highest stored token id.
func (r *PostgresRepository) NextTokenID(ctx context.Context) (TokenID, error) {
	var highest int64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(token_id), 0) FROM tokens`).Scan(&highest); err != nil {
		return 0, err
	}
	return TokenID(uint64(highest)) + 1, nil
}

// Apply writes the changeset in a single transaction.
func (r *PostgresRepository) Apply(ctx context.Context, cs *Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, w := range cs.tokens {
		if err := upsertToken(ctx, tx, w.id, w.record); err != nil {
			return fmt.Errorf("store token %d: %w", w.id, err)
		}
	}

	for _, w := range cs.accounts {
		if w.remove {
			if _, err := tx.Exec(ctx, `DELETE FROM token_accounts WHERE token_id = $1 AND account_id = $2`,
				int64(w.key.Token), int64(w.key.Account)); err != nil {
				return fmt.Errorf("remove account %d/%d: %w", w.key.Token, w.key.Account, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO token_accounts (token_id, account_id, free_balance, reserved_balance)
            VALUES ($1, $2, $3::text::numeric, $4::text::numeric)
            ON CONFLICT (token_id, account_id) DO UPDATE
            SET free_balance = EXCLUDED.free_balance, reserved_balance = EXCLUDED.reserved_balance`,
			int64(w.key.Token), int64(w.key.Account), w.record.FreeBalance.String(), w.record.ReservedBalance.String()); err != nil {
			return fmt.Errorf("store account %d/%d: %w", w.key.Token, w.key.Account, err)
		}
	}

	return tx.Commit(ctx)
}

func upsertToken(ctx context.Context, tx pgx.Tx, id TokenID, record TokenRecord) error {
	kind, commitment := EncodePolicy(record.TransferPolicy)
	var commitBytes []byte
	if commitment != nil {
		commitBytes = commitment[:]
	}

	_, err := tx.Exec(ctx, `
        INSERT INTO tokens (token_id, total_issuance, existential_deposit, issuance_state, policy_kind,
                            policy_commitment, patronage_rate, patronage_tally, patronage_last_update, symbol)
        VALUES ($1, $2::text::numeric, $3::text::numeric, $4, $5, $6, $7::text::numeric,
                $8::text::numeric, $9::text::numeric, $10)
        ON CONFLICT (token_id) DO UPDATE SET
            total_issuance = EXCLUDED.total_issuance,
            existential_deposit = EXCLUDED.existential_deposit,
            issuance_state = EXCLUDED.issuance_state,
            policy_kind = EXCLUDED.policy_kind,
            policy_commitment = EXCLUDED.policy_commitment,
            patronage_rate = EXCLUDED.patronage_rate,
            patronage_tally = EXCLUDED.patronage_tally,
            patronage_last_update = EXCLUDED.patronage_last_update,
            symbol = EXCLUDED.symbol`,
		int64(id),
		record.TotalIssuance.String(),
		record.ExistentialDeposit.String(),
		record.IssuanceState.String(),
		kind,
		commitBytes,
		record.Patronage.Rate.String(),
		record.Patronage.Tally.String(),
		balance.Balance(record.Patronage.LastUpdate).String(),
		record.Symbol[:],
	)
	return err
}

func parseAccount(free, reserved string) (AccountRecord, error) {
	freeBal, err := balance.Parse(free)
	if err != nil {
		return AccountRecord{}, err
	}
	reservedBal, err := balance.Parse(reserved)
	if err != nil {
		return AccountRecord{}, err
	}
	return AccountRecord{FreeBalance: freeBal, ReservedBalance: reservedBal}, nil
}

func hashFromBytes(b []byte) (merkle.Hash, error) {
	var h merkle.Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("stored hash has %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}
