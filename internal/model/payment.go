package model

import (
	"fmt"
	"strings"
	"time"
)

// PaymentMethod is how a registration fee is settled.
type PaymentMethod string

const (
	MethodOnline       PaymentMethod = "online"
	MethodBankTransfer PaymentMethod = "bankTransfer"
	MethodVoucher      PaymentMethod = "voucher"
)

// ParsePaymentMethod validates a method name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.TrimSpace(s)); m {
	case MethodOnline, MethodBankTransfer, MethodVoucher:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// ParsePaymentMethods parses a comma separated column value.  Unknown
// entries are skipped.
func ParsePaymentMethods(s string) []PaymentMethod {
	var out []PaymentMethod
	for _, part := range strings.Split(s, ",") {
		if m, err := ParsePaymentMethod(part); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// JoinPaymentMethods is the inverse of ParsePaymentMethods.
func JoinPaymentMethods(ms []PaymentMethod) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

func containsMethod(ms []PaymentMethod, m PaymentMethod) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

// PaymentStatus is the state of a payment record.  The only edges are
//
//	Pending -> Paid | PaymentFailure
//	Paid    -> Refunded
//
// and no record ever returns to Pending.
type PaymentStatus uint8

const (
	PaymentPending  PaymentStatus = 0
	PaymentPaid     PaymentStatus = 1
	PaymentRefunded PaymentStatus = 2
	PaymentFailure  PaymentStatus = 3
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentPaid:
		return "paid"
	case PaymentRefunded:
		return "refunded"
	case PaymentFailure:
		return "payment_failure"
	}
	return "unknown"
}

// CanTransitionTo reports whether s -> to is an edge of the status graph.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return to == PaymentPaid || to == PaymentFailure
	case PaymentPaid:
		return to == PaymentRefunded
	}
	return false
}

// TargetKind tells which kind of registration a payment or voucher
// belongs to.
type TargetKind string

const (
	TargetApplication TargetKind = "application"
	TargetTicket      TargetKind = "ticket"
)

// PaymentTarget is the registration a payment settles.  Exactly one of
// application or ticket is referenced; the kind carries which.
type PaymentTarget struct {
	Kind TargetKind
	ID   uint64
}

// ApplicationTarget returns the target for an application id.
func ApplicationTarget(id uint64) PaymentTarget {
	return PaymentTarget{Kind: TargetApplication, ID: id}
}

// TicketTarget returns the target for a ticket id.
func TicketTarget(id uint64) PaymentTarget {
	return PaymentTarget{Kind: TargetTicket, ID: id}
}

// PaymentResult is gateway metadata merged in after settlement.
type PaymentResult struct {
	CardBrand  *string
	ReceiptURL *string
}

// Payment is one monetary obligation of a registration.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – paying user (nil for standalone tickets).
//  ProductRef       – gateway product reference of the purchased item.
//  Method           – payment method.
//  BankTransferCode – short human reference for bank transfers.
//  Amount           – amount due in minor units.
//  Status           – state machine position.
//  Target           – application or ticket being paid for.
//  GatewayIntentID  – gateway payment intent, set once paid.
//  GatewaySessionID – latest checkout session opened for the record.
//  Result           – card brand and receipt handle from the gateway.
type Payment struct {
	ID               uint64        // payments.id
	UserID           *uint64       // payments.user_id (nullable)
	ProductRef       string        // payments.product_ref
	Method           PaymentMethod // payments.method
	BankTransferCode string        // payments.bank_transfer_code
	Amount           int64         // payments.amount
	Status           PaymentStatus // payments.status
	Target           PaymentTarget // payments.target_kind, payments.target_id
	GatewayIntentID  *string       // payments.gateway_intent_id (nullable)
	GatewaySessionID *string       // payments.gateway_session_id (nullable)
	Result           PaymentResult // payments.card_brand, payments.receipt_url
	CreatedAt        time.Time     // payments.created_at
	UpdatedAt        time.Time     // payments.updated_at
}
