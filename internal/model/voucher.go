package model

import "time"

// VoucherTarget scopes a voucher to an event (applications) or a store
// (tickets) and optionally to one space or ticket type.
type VoucherTarget struct {
	Kind   TargetKind
	ID     uint64
	TypeID *uint64
}

// Voucher is a discount code with a usage limit.  UsedCountLimit nil
// means unlimited.
type Voucher struct {
	ID             uint64        // vouchers.id
	Code           string        // vouchers.code
	Target         VoucherTarget // vouchers.target_kind, target_id, target_type_id
	Discount       int64         // vouchers.discount
	UsedCount      uint32        // vouchers.used_count
	UsedCountLimit *uint32       // vouchers.used_count_limit (nullable)
	CreatedAt      time.Time     // vouchers.created_at
	UpdatedAt      time.Time     // vouchers.updated_at
}

// Matches reports whether the voucher may be used for the given target.
func (v Voucher) Matches(t VoucherTarget) bool {
	if v.Target.Kind != t.Kind || v.Target.ID != t.ID {
		return false
	}
	if v.Target.TypeID == nil {
		return true
	}
	return t.TypeID != nil && *t.TypeID == *v.Target.TypeID
}

// Exhausted reports whether no redemption is left.
func (v Voucher) Exhausted() bool {
	return v.UsedCountLimit != nil && v.UsedCount >= *v.UsedCountLimit
}
