// Package testdb opens per-test in-memory SQLite databases carrying the
// service schema, and seeds catalog rows the service itself never
// writes (users, events, stores, vouchers).
package testdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/circle-registration/internal/model"
)

//go:embed schema.sql
var schema string

var voucherSeq atomic.Int64

var nameCleaner = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// Open returns a fresh database named after the running test.  The pool
// is limited to one connection so SQLite serializes writers the way
// row locks do on MySQL.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", nameCleaner.Replace(t.Name()))
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

// Now is the fixed wall clock tests build their windows around.
var Now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func insert(t *testing.T, db *sql.DB, q string, args ...any) uint64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(), q, args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

func User(t *testing.T, db *sql.DB, email string) uint64 {
	t.Helper()
	return insert(t, db, `INSERT INTO users (email, display_name, created_at) VALUES (?, ?, ?)`,
		email, strings.Split(email, "@")[0], Now)
}

// EventOpts describes an event and one space type offered at it.
type EventOpts struct {
	OrganizationID uint64
	Start, End     time.Time
	AllowAdult     bool
	Methods        []model.PaymentMethod
	Price          int64
	ProductRef     string
}

// Event inserts an event with a single space type and returns both ids.
func Event(t *testing.T, db *sql.DB, o EventOpts) (eventID, spaceTypeID uint64) {
	t.Helper()
	o = o.withDefaults()
	eventID = insert(t, db, `INSERT INTO events
		(organization_id, name, application_start_at, application_end_at, allow_adult, payment_methods, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrganizationID, "Comic Market", o.Start, o.End, o.AllowAdult, model.JoinPaymentMethods(o.Methods), Now, Now)
	spaceTypeID = SpaceType(t, db, eventID, o.Price, o.ProductRef)
	return eventID, spaceTypeID
}

// SpaceType adds another space option to an event.
func SpaceType(t *testing.T, db *sql.DB, eventID uint64, price int64, productRef string) uint64 {
	t.Helper()
	return insert(t, db, `INSERT INTO space_types (event_id, name, price, product_ref) VALUES (?, ?, ?, ?)`,
		eventID, "Standard space", price, nullable(productRef))
}

// StoreOpts describes a store and one ticket type sold in it.
type StoreOpts struct {
	OrganizationID uint64
	Start, End     time.Time
	Methods        []model.PaymentMethod
	Price          int64
	ProductRef     string
	AnotherStoreID uint64
	AnotherTypeID  uint64
}

// Store inserts a store with a single ticket type and returns both ids.
func Store(t *testing.T, db *sql.DB, o StoreOpts) (storeID, typeID uint64) {
	t.Helper()
	e := EventOpts{OrganizationID: o.OrganizationID, Start: o.Start, End: o.End, Methods: o.Methods}.withDefaults()
	storeID = insert(t, db, `INSERT INTO stores
		(organization_id, name, sale_start_at, sale_end_at, payment_methods, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.OrganizationID, "Day 1 admission", e.Start, e.End, model.JoinPaymentMethods(e.Methods), Now, Now)
	var anotherStore, anotherType any
	if o.AnotherStoreID != 0 {
		anotherStore, anotherType = o.AnotherStoreID, o.AnotherTypeID
	}
	typeID = insert(t, db, `INSERT INTO ticket_types
		(store_id, name, price, product_ref, another_store_id, another_type_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		storeID, "General", o.Price, nullable(o.ProductRef), anotherStore, anotherType)
	return storeID, typeID
}

// Voucher inserts a voucher.  A zero limit means unlimited.
func Voucher(t *testing.T, db *sql.DB, target model.VoucherTarget, discount int64, limit uint32) uint64 {
	t.Helper()
	var lim, typeID any
	if limit > 0 {
		lim = limit
	}
	if target.TypeID != nil {
		typeID = *target.TypeID
	}
	return insert(t, db, `INSERT INTO vouchers
		(code, target_kind, target_id, target_type_id, discount, used_count, used_count_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		fmt.Sprintf("V%04d", voucherSeq.Add(1)), string(target.Kind), target.ID, typeID, discount, lim, Now, Now)
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (o EventOpts) withDefaults() EventOpts {
	if o.OrganizationID == 0 {
		o.OrganizationID = 1
	}
	if o.Start.IsZero() {
		o.Start = Now.Add(-24 * time.Hour)
	}
	if o.End.IsZero() {
		o.End = Now.Add(24 * time.Hour)
	}
	if o.Methods == nil {
		o.Methods = []model.PaymentMethod{model.MethodOnline, model.MethodBankTransfer, model.MethodVoucher}
	}
	return o
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
