package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledgerPrecision is the number of decimal places of the ledger's native
// unit. Amounts are rounded to this precision whenever they are derived
// from a multiplication.
const ledgerPrecision = 12

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusExpired PaymentStatus = "expired"
)

type FulfillmentStatus string

const (
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusShipped    FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered  FulfillmentStatus = "delivered"
)

// Order is the data structure representing a buyer purchase awaiting
// settlement. Payment fields are mutated only by the payment poller,
// commission fields only by the commission forwarder.
type Order struct {
	Id                    string
	Address               string
	TotalAmount           decimal.Decimal
	FiatCurrency          string
	CommissionAmount      decimal.Decimal
	SellerAmount          decimal.Decimal
	PaymentStatus         PaymentStatus
	ConfirmationsObserved uint64
	CommissionPaid        bool
	CommissionTxid        string
	CommissionPaidAt      *time.Time
	CommissionAttemptedAt *time.Time
	ManualSettlement      bool
	FulfillmentStatus     FulfillmentStatus
	CreatedAt             time.Time
	ExpiresAt             time.Time
}

// NewOrder returns a pending order with a new id for the given receiving
// address and total amount. The commission split is computed upfront from
// the provided rate so that both amounts are fixed for the whole lifecycle.
func NewOrder(
	address string, total decimal.Decimal, fiatCurrency string,
	commissionRate decimal.Decimal, ttl time.Duration,
) (*Order, error) {
	if len(address) <= 0 {
		return nil, ErrOrderMissingAddress
	}
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrOrderInvalidAmount
	}

	now := time.Now()
	commission := total.Mul(commissionRate).Round(ledgerPrecision)
	return &Order{
		Id:                uuid.New().String(),
		Address:           address,
		TotalAmount:       total,
		FiatCurrency:      fiatCurrency,
		CommissionAmount:  commission,
		SellerAmount:      total.Sub(commission),
		PaymentStatus:     PaymentStatusPending,
		FulfillmentStatus: FulfillmentStatusProcessing,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}, nil
}

// ObserveConfirmations records a freshly read confirmation count. The stored
// counter is monotonically non-decreasing while the order is pending, so a
// daemon restart reporting a lower count does not rewind it.
func (o *Order) ObserveConfirmations(count uint64) {
	if o.PaymentStatus != PaymentStatusPending {
		return
	}
	if count > o.ConfirmationsObserved {
		o.ConfirmationsObserved = count
	}
}

// ConfirmPayment brings a pending order to the paid status. It is idempotent
// on already paid orders and rejects expired ones.
func (o *Order) ConfirmPayment() (bool, error) {
	if o.PaymentStatus == PaymentStatusPaid {
		return true, nil
	}
	if o.PaymentStatus == PaymentStatusExpired {
		return false, ErrOrderExpired
	}
	o.PaymentStatus = PaymentStatusPaid
	return true, nil
}

// Expire brings a pending order to the expired status. A paid order can
// never expire.
func (o *Order) Expire() (bool, error) {
	if o.PaymentStatus == PaymentStatusExpired {
		return true, nil
	}
	if o.PaymentStatus == PaymentStatusPaid {
		return false, ErrOrderAlreadyPaid
	}
	o.PaymentStatus = PaymentStatusExpired
	return true, nil
}

// IsPastDeadline returns whether the order deadline has passed at the given
// instant.
func (o *Order) IsPastDeadline(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// NeedsCommission returns whether the order is eligible for an automatic
// commission forward attempt.
func (o *Order) NeedsCommission() bool {
	return o.PaymentStatus == PaymentStatusPaid &&
		!o.CommissionPaid && !o.ManualSettlement
}

// MarkCommissionAttempt records the instant a transfer submission is about
// to be issued. It is consulted on retries to detect a transfer that was
// submitted but whose outcome was never persisted.
func (o *Order) MarkCommissionAttempt(at time.Time) {
	t := at
	o.CommissionAttemptedAt = &t
}

// RecordCommission marks the commission as settled with the given
// transaction id, exactly once. Calling it on an already settled order is a
// no-op returning true.
func (o *Order) RecordCommission(txid string, at time.Time) (bool, error) {
	if o.CommissionPaid {
		return true, nil
	}
	if o.PaymentStatus != PaymentStatusPaid {
		return false, ErrOrderNotPaid
	}
	t := at
	o.CommissionPaid = true
	o.CommissionTxid = txid
	o.CommissionPaidAt = &t
	return false, nil
}

// SkipCommission closes the commission accounting loop without a transfer,
// used when the computed amount is below the dust threshold. The txid stays
// empty.
func (o *Order) SkipCommission(at time.Time) error {
	if o.CommissionPaid {
		return nil
	}
	if o.PaymentStatus != PaymentStatusPaid {
		return ErrOrderNotPaid
	}
	t := at
	o.CommissionPaid = true
	o.CommissionPaidAt = &t
	return nil
}

// FlagManualSettlement routes the order to out-of-band commission
// settlement. Automatic retries skip flagged orders.
func (o *Order) FlagManualSettlement() error {
	if o.PaymentStatus != PaymentStatusPaid {
		return ErrOrderNotPaid
	}
	o.ManualSettlement = true
	return nil
}

// Ship and Deliver advance the fulfillment status, which is independent of
// the payment lifecycle.
func (o *Order) Ship() {
	if o.FulfillmentStatus == FulfillmentStatusProcessing {
		o.FulfillmentStatus = FulfillmentStatusShipped
	}
}

func (o *Order) Deliver() {
	o.FulfillmentStatus = FulfillmentStatusDelivered
}
