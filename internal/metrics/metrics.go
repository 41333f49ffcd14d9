// Package metrics exposes Prometheus counters for ledger state transitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/congo-pay/tokenledger/internal/balance"
)

const namespace = "tokenledger"

// Rejection reasons for the transfers_rejected_total counter.
const (
	ReasonNotPermitted        = "not_permitted"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonBelowDeposit        = "below_existential_deposit"
	ReasonInvalid             = "invalid"
)

// Metrics holds the ledger counters. A nil *Metrics records nothing.
type Metrics struct {
	transfers         prometheus.Counter
	transferRejected  *prometheus.CounterVec
	accountsRemoved   prometheus.Counter
	dustSwept         *prometheus.CounterVec
	minted            prometheus.Counter
	burned            prometheus.Counter
	patronageClaimed  prometheus.Counter
	proofVerification *prometheus.CounterVec
}

// New builds the counters and registers them with registry. A nil registry
// creates unregistered counters.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		transfers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total number of applied transfer batches",
		}),
		transferRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_rejected_total",
			Help:      "Total number of rejected transfer batches by reason",
		}, []string{"reason"}),
		accountsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_removed_total",
			Help:      "Total number of accounts removed under the existential deposit",
		}),
		dustSwept: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dust_swept_total",
			Help:      "Total amount of dust swept from removed accounts by disposal policy",
		}, []string{"policy"}),
		minted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minted_total",
			Help:      "Total amount minted across tokens",
		}),
		burned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "burned_total",
			Help:      "Total amount burned across tokens",
		}),
		patronageClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patronage_claimed_total",
			Help:      "Total amount of patronage credit paid out",
		}),
		proofVerification: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_verifications_total",
			Help:      "Total number of allow-list proof verifications by result",
		}, []string{"result"}),
	}
}

// TransferApplied counts an applied batch.
func (m *Metrics) TransferApplied() {
	if m == nil {
		return
	}
	m.transfers.Inc()
}

// TransferRejected counts a rejected batch.
func (m *Metrics) TransferRejected(reason string) {
	if m == nil {
		return
	}
	m.transferRejected.WithLabelValues(reason).Inc()
}

// AccountRemoved counts a removed account and the dust swept from it.
func (m *Metrics) AccountRemoved(policy string, dust balance.Balance) {
	if m == nil {
		return
	}
	m.accountsRemoved.Inc()
	m.dustSwept.WithLabelValues(policy).Add(float64(dust))
}

// Minted adds to the minted amount.
func (m *Metrics) Minted(amount balance.Balance) {
	if m == nil {
		return
	}
	m.minted.Add(float64(amount))
}

// Burned adds to the burned amount.
func (m *Metrics) Burned(amount balance.Balance) {
	if m == nil {
		return
	}
	m.burned.Add(float64(amount))
}

// PatronageClaimed adds to the claimed patronage amount.
func (m *Metrics) PatronageClaimed(amount balance.Balance) {
	if m == nil {
		return
	}
	m.patronageClaimed.Add(float64(amount))
}

// ProofVerified counts a proof check.
func (m *Metrics) ProofVerified(ok bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.proofVerification.WithLabelValues(result).Inc()
}
