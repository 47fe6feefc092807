package registration_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/config"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/notify"
	"github.com/iliyamo/circle-registration/internal/notify/notifytest"
	"github.com/iliyamo/circle-registration/internal/publicid"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/registration"
	"github.com/iliyamo/circle-registration/internal/repository"
	"github.com/iliyamo/circle-registration/internal/testdb"
)

type fakeSessions struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: fmt.Sprintf("cs_%d", f.calls), URL: fmt.Sprintf("https://checkout.test/%d", f.calls)}, nil
}

type env struct {
	db       *sql.DB
	svc      *registration.Service
	sessions *fakeSessions
	notes    *notifytest.Recorder
	payments *repository.PaymentRepo
	apps     *repository.ApplicationRepo
	tickets  *repository.TicketRepo
	vouchers *repository.VoucherRepo
	ids      *repository.PublicIDRepo
}

var tokyo, _ = time.LoadLocation("Asia/Tokyo")

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t)
	log := zaptest.NewLogger(t)
	e := &env{
		db:       db,
		sessions: &fakeSessions{},
		notes:    &notifytest.Recorder{},
		payments: repository.NewPaymentRepo(db),
		apps:     repository.NewApplicationRepo(db),
		tickets:  repository.NewTicketRepo(db),
		vouchers: repository.NewVoucherRepo(db),
		ids:      repository.NewPublicIDRepo(db),
	}
	gw := checkout.NewGateway(log, config.StripeConfig{Currency: "jpy", Timeout: time.Second}, e.sessions, e.payments)
	gw.Now = func() time.Time { return testdb.Now }

	var seq atomic.Int64
	ids := &publicid.Generator{Salt: "test-salt", Now: func() time.Time {
		return testdb.Now.Add(time.Duration(seq.Add(1)) * time.Millisecond)
	}}
	e.svc = registration.New(log, registration.Deps{
		Events:       repository.NewEventRepo(db),
		Stores:       repository.NewStoreRepo(db),
		Applications: e.apps,
		Tickets:      e.tickets,
		PublicIDs:    e.ids,
		Payments:     e.payments,
		Vouchers:     e.vouchers,
		Users:        repository.NewUserRepo(db),
		Checkout:     gw,
		Notifier:     notify.NewDispatcher(log, e.notes),
		IDs:          ids,
	}, tokyo, 3)
	e.svc.Now = func() time.Time { return testdb.Now }
	return e
}

func requireKind(t *testing.T, err error, kind apperr.Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), err.Error())
	require.Equal(t, reason, apperr.Reason(err))
}

func (e *env) requireEmpty(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		require.Zero(t, testdb.Count(t, e.db, table), table)
	}
}

func TestApplicationOutsideWindow(t *testing.T) {
	e := newEnv(t)
	user := testdb.User(t, e.db, "circle@example.com")
	t0 := testdb.Now.Add(-time.Hour)
	t1 := testdb.Now.Add(-time.Millisecond)
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{Start: t0, End: t1, Price: 1000, ProductRef: "prod_space"})

	_, err := e.svc.CreateApplication(context.Background(), user, registration.ApplicationInput{
		EventID: eventID, SpaceTypeID: spaceID, CircleName: "Late", PaymentMethod: model.MethodOnline,
	})
	requireKind(t, err, apperr.DeadlineExceeded, "outside_window")
	e.requireEmpty(t, "applications", "application_meta", "payments", "public_ids")
	require.Zero(t, e.notes.Count(queue.RegistrationCreatedQueue))

	// The window is inclusive at its end.
	e.svc.Now = func() time.Time { return t1 }
	_, err = e.svc.CreateApplication(context.Background(), user, registration.ApplicationInput{
		EventID: eventID, SpaceTypeID: spaceID, CircleName: "Just in time", PaymentMethod: model.MethodOnline,
	})
	require.NoError(t, err)
}

func TestFreeApplicationHasNoPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testdb.User(t, e.db, "free@example.com")
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{Price: 0})

	res, err := e.svc.CreateApplication(ctx, user, registration.ApplicationInput{
		EventID: eventID, SpaceTypeID: spaceID, CircleName: "Free Circle", PaymentMethod: model.MethodOnline,
	})
	require.NoError(t, err)
	require.Nil(t, res.CheckoutURL)
	require.Regexp(t, `^\d{17}-[0-9a-f]{20}$`, res.PublicID)
	require.Equal(t, "012100", res.BankTransferCode, "day, hour, minute in Tokyo")
	e.requireEmpty(t, "payments")
	require.Zero(t, e.sessions.calls)

	app, err := e.apps.GetByPublicID(ctx, res.PublicID)
	require.NoError(t, err)
	meta, err := e.apps.Status(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProvisional, meta.Status)

	idx, err := e.ids.Get(ctx, res.PublicID)
	require.NoError(t, err)
	require.Nil(t, idx.PaymentID)

	require.Equal(t, 1, e.notes.Count(queue.RegistrationCreatedQueue))
	var ev queue.RegistrationCreatedEvent
	require.NoError(t, e.notes.Decode(queue.RegistrationCreatedQueue, 0, &ev))
	require.Equal(t, res.PublicID, ev.PublicID)
	require.Equal(t, "Comic Market", ev.TargetName)
	require.Equal(t, "Standard space", ev.OptionName)
}

func TestOnlineApplicationOpensCheckout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testdb.User(t, e.db, "paid@example.com")
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{Price: 8000, ProductRef: "prod_space"})

	res, err := e.svc.CreateApplication(ctx, user, registration.ApplicationInput{
		EventID: eventID, SpaceTypeID: spaceID, CircleName: "Paid", PaymentMethod: model.MethodOnline,
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.test/1", *res.CheckoutURL)
	require.False(t, res.RetryCheckout)

	idx, err := e.ids.Get(ctx, res.PublicID)
	require.NoError(t, err)
	p, err := e.payments.GetByID(ctx, *idx.PaymentID)
	require.NoError(t, err)
	require.Equal(t, int64(8000), p.Amount)
	require.Equal(t, model.ApplicationTarget(idx.RecordID), p.Target)
	require.Equal(t, user, *p.UserID)
	require.Equal(t, res.BankTransferCode, p.BankTransferCode)
}

func TestBankTransferApplication(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testdb.User(t, e.db, "bank@example.com")
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{Price: 5000, ProductRef: "prod_space"})

	res, err := e.svc.CreateApplication(ctx, user, registration.ApplicationInput{
		EventID: eventID, SpaceTypeID: spaceID, CircleName: "Bank", PaymentMethod: model.MethodBankTransfer,
	})
	require.NoError(t, err)
	require.Nil(t, res.CheckoutURL)
	require.Zero(t, e.sessions.calls)

	p, err := e.payments.FindOne(ctx, user, model.PaymentPending, model.MethodBankTransfer, []string{"prod_space"})
	require.NoError(t, err)
	require.Equal(t, "012100", p.BankTransferCode)
}

func TestApplicationValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testdb.User(t, e.db, "v@example.com")
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{
		Price: 1000, ProductRef: "prod_space", Methods: []model.PaymentMethod{model.MethodOnline},
	})
	base := registration.ApplicationInput{EventID: eventID, SpaceTypeID: spaceID, CircleName: "C", PaymentMethod: model.MethodOnline}

	adult := base
	adult.IsAdult = true
	_, err := e.svc.CreateApplication(ctx, user, adult)
	requireKind(t, err, apperr.InvalidArgument, "adult_not_allowed")

	bank := base
	bank.PaymentMethod = model.MethodBankTransfer
	_, err = e.svc.CreateApplication(ctx, user, bank)
	requireKind(t, err, apperr.InvalidArgument, "payment_method_not_allowed")

	missing := base
	missing.EventID = eventID + 10
	_, err = e.svc.CreateApplication(ctx, user, missing)
	requireKind(t, err, apperr.NotFound, "event_not_found")

	ghost := "20260101000000000-deadbeefdeadbeefdead"
	union := base
	union.UnionCircleID = &ghost
	_, err = e.svc.CreateApplication(ctx, user, union)
	requireKind(t, err, apperr.NotFound, "union_not_found")

	_, err = e.svc.CreateApplication(ctx, 999, base)
	requireKind(t, err, apperr.NotFound, "user_not_found")

	e.requireEmpty(t, "applications", "payments", "public_ids")

	_, err = e.svc.CreateApplication(ctx, user, base)
	require.NoError(t, err)
	_, err = e.svc.CreateApplication(ctx, user, base)
	requireKind(t, err, apperr.AlreadyExists, "duplicate_registration")
}

func TestUnionLinking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	eventID, spaceID := testdb.Event(t, e.db, testdb.EventOpts{Price: 0})
	in := func(name string, union *string) registration.ApplicationInput {
		return registration.ApplicationInput{
			EventID: eventID, SpaceTypeID: spaceID, CircleName: name, PaymentMethod: model.MethodOnline, UnionCircleID: union,
		}
	}

	a, err := e.svc.CreateApplication(ctx, testdb.User(t, e.db, "a@example.com"), in("A", nil))
	require.NoError(t, err)
	b, err := e.svc.CreateApplication(ctx, testdb.User(t, e.db, "b@example.com"), in("B", &a.PublicID))
	require.NoError(t, err)

	appA, err := e.apps.GetByPublicID(ctx, a.PublicID)
	require.NoError(t, err)
	appB, err := e.apps.GetByPublicID(ctx, b.PublicID)
	require.NoError(t, err)
	require.Equal(t, b.PublicID, *appA.UnionCircleID)
	require.Equal(t, a.PublicID, *appB.UnionCircleID)

	_, err = e.svc.CreateApplication(ctx, testdb.User(t, e.db, "c@example.com"), in("C", &b.PublicID))
	requireKind(t, err, apperr.AlreadyExists, "union_taken")
	require.Equal(t, 2, testdb.Count(t, e.db, "applications"))
}

func TestTicketVoucherCoverage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{Price: 1000, ProductRef: "prod_ticket"})
	target := model.VoucherTarget{Kind: model.TargetTicket, ID: storeID, TypeID: &typeID}

	full := testdb.Voucher(t, e.db, target, 1000, 0)
	res, err := e.svc.CreateTicket(ctx, testdb.User(t, e.db, "full@example.com"), registration.TicketInput{
		StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodVoucher, VoucherID: &full,
	})
	require.NoError(t, err)
	require.Nil(t, res.CheckoutURL)
	e.requireEmpty(t, "payments")

	tk, err := e.tickets.GetByPublicID(ctx, res.PublicID)
	require.NoError(t, err)
	meta, err := e.tickets.Status(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, meta.Status)

	partial := testdb.Voucher(t, e.db, target, 400, 0)
	_, err = e.svc.CreateTicket(ctx, testdb.User(t, e.db, "partial@example.com"), registration.TicketInput{
		StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodVoucher, VoucherID: &partial,
	})
	requireKind(t, err, apperr.InvalidArgument, "voucher_insufficient")
	v, err := e.vouchers.Get(ctx, partial)
	require.NoError(t, err)
	require.Zero(t, v.UsedCount, "rejected purchase does not burn the voucher")
	require.Equal(t, 1, testdb.Count(t, e.db, "tickets"))

	// The same voucher discounts an online purchase.
	res, err = e.svc.CreateTicket(ctx, testdb.User(t, e.db, "online@example.com"), registration.TicketInput{
		StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodOnline, VoucherID: &partial,
	})
	require.NoError(t, err)
	idx, err := e.ids.Get(ctx, res.PublicID)
	require.NoError(t, err)
	p, err := e.payments.GetByID(ctx, *idx.PaymentID)
	require.NoError(t, err)
	require.Equal(t, int64(600), p.Amount)

	other := testdb.Voucher(t, e.db, model.VoucherTarget{Kind: model.TargetTicket, ID: storeID + 1}, 1000, 0)
	_, err = e.svc.CreateTicket(ctx, testdb.User(t, e.db, "scope@example.com"), registration.TicketInput{
		StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodVoucher, VoucherID: &other,
	})
	requireKind(t, err, apperr.InvalidArgument, "voucher_unavailable")
}

func TestVoucherRaceNeverOverspends(t *testing.T) {
	e := newEnv(t)
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{Price: 1000, ProductRef: "prod_ticket"})
	const limit, buyers = 3, 10
	voucherID := testdb.Voucher(t, e.db, model.VoucherTarget{Kind: model.TargetTicket, ID: storeID}, 1000, limit)

	users := make([]uint64, buyers)
	for i := range users {
		users[i] = testdb.User(t, e.db, fmt.Sprintf("buyer%d@example.com", i))
	}

	var won, lost atomic.Int32
	var g errgroup.Group
	for _, uid := range users {
		g.Go(func() error {
			_, err := e.svc.CreateTicket(context.Background(), uid, registration.TicketInput{
				StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodVoucher, VoucherID: &voucherID,
			})
			switch {
			case err == nil:
				won.Add(1)
			case apperr.Reason(err) == "voucher_unavailable":
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, limit, won.Load())
	require.EqualValues(t, buyers-limit, lost.Load())
	require.Equal(t, limit, testdb.Count(t, e.db, "tickets"))

	v, err := e.vouchers.Get(context.Background(), voucherID)
	require.NoError(t, err)
	require.EqualValues(t, limit, v.UsedCount)
}

func TestDuplicateRaceKeepsVoucherUses(t *testing.T) {
	e := newEnv(t)
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{Price: 1000, ProductRef: "prod_ticket"})
	voucherID := testdb.Voucher(t, e.db, model.VoucherTarget{Kind: model.TargetTicket, ID: storeID}, 1000, 10)
	userID := testdb.User(t, e.db, "twice@example.com")

	var won atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := e.svc.CreateTicket(context.Background(), userID, registration.TicketInput{
				StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodVoucher, VoucherID: &voucherID,
			})
			switch {
			case err == nil:
				won.Add(1)
			case apperr.KindOf(err) == apperr.AlreadyExists:
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, won.Load())
	require.Equal(t, 1, testdb.Count(t, e.db, "tickets"))

	v, err := e.vouchers.Get(context.Background(), voucherID)
	require.NoError(t, err)
	require.EqualValues(t, 1, v.UsedCount, "uses taken by losing inserts are given back")
}

func TestLinkedTicket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	afterStore, afterType := testdb.Store(t, e.db, testdb.StoreOpts{Price: 3000, ProductRef: "prod_after"})
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{
		Price: 2000, ProductRef: "prod_main", AnotherStoreID: afterStore, AnotherTypeID: afterType,
	})
	user := testdb.User(t, e.db, "pair@example.com")

	res, err := e.svc.CreateTicket(ctx, user, registration.TicketInput{StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodOnline})
	require.NoError(t, err)
	require.NotNil(t, res.CheckoutURL)

	require.Equal(t, 2, testdb.Count(t, e.db, "tickets"))
	require.Equal(t, 1, testdb.Count(t, e.db, "payments"), "secondary ticket is free")
	require.Equal(t, 2, testdb.Count(t, e.db, "public_ids"))
	require.Equal(t, 1, e.notes.Count(queue.RegistrationCreatedQueue))

	primary, err := e.tickets.GetByPublicID(ctx, res.PublicID)
	require.NoError(t, err)
	var childID uint64
	require.NoError(t, e.db.QueryRow(`SELECT id FROM tickets WHERE parent_ticket_id = ?`, primary.ID).Scan(&childID))
	child, err := e.tickets.GetByID(ctx, childID)
	require.NoError(t, err)
	require.Equal(t, afterStore, child.StoreID)
	require.Equal(t, model.MethodOnline, child.PaymentMethod)
	require.NotNil(t, child.PublicID)
	meta, err := e.tickets.Status(ctx, childID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProvisional, meta.Status)
}

func TestCheckoutFailureKeepsRegistration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{Price: 1000, ProductRef: "prod_ticket"})
	user := testdb.User(t, e.db, "retry@example.com")
	e.sessions.err = errors.New("gateway timeout")

	res, err := e.svc.CreateTicket(ctx, user, registration.TicketInput{StoreID: storeID, TypeID: typeID, PaymentMethod: model.MethodOnline})
	require.NoError(t, err)
	require.True(t, res.RetryCheckout)
	require.Nil(t, res.CheckoutURL)
	require.NotEmpty(t, res.PublicID)
	require.Equal(t, 1, testdb.Count(t, e.db, "payments"))

	e.sessions.err = nil
	again, err := e.svc.ReopenCheckout(ctx, user, res.PublicID)
	require.NoError(t, err)
	require.NotNil(t, again.CheckoutURL)
	require.Equal(t, res.BankTransferCode, again.BankTransferCode)
	require.Equal(t, 1, testdb.Count(t, e.db, "payments"))

	stranger := testdb.User(t, e.db, "stranger@example.com")
	_, err = e.svc.ReopenCheckout(ctx, stranger, res.PublicID)
	requireKind(t, err, apperr.NotFound, "registration_not_found")
}

func TestAdminTicket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	storeID, typeID := testdb.Store(t, e.db, testdb.StoreOpts{
		OrganizationID: 7, Price: 1000, ProductRef: "prod_ticket",
		Start: testdb.Now.Add(-48 * time.Hour), End: testdb.Now.Add(-24 * time.Hour),
	})
	known := testdb.User(t, e.db, "member@example.com")

	_, err := e.svc.CreateTicketForAdmin(ctx, registration.Admin{UserID: 1, OrganizationID: 8}, storeID, "member@example.com", typeID)
	requireKind(t, err, apperr.PermissionDenied, "organization_mismatch")

	admin := registration.Admin{UserID: 1, OrganizationID: 7}
	echo, err := e.svc.CreateTicketForAdmin(ctx, admin, storeID, " Member@Example.com ", typeID)
	require.NoError(t, err, "sale window does not bind operators")
	require.True(t, echo.LinkedUser)
	require.Equal(t, "confirmed", echo.Status)

	tk, err := e.tickets.GetByPublicID(ctx, echo.PublicID)
	require.NoError(t, err)
	require.Equal(t, known, *tk.UserID)

	guest, err := e.svc.CreateTicketForAdmin(ctx, admin, storeID, "walk-in@example.com", typeID)
	require.NoError(t, err)
	require.False(t, guest.LinkedUser)
	tk, err = e.tickets.GetByPublicID(ctx, guest.PublicID)
	require.NoError(t, err)
	require.Nil(t, tk.UserID)
	require.Equal(t, "walk-in@example.com", *tk.Email)

	e.requireEmpty(t, "payments")
	require.Equal(t, 2, e.notes.Count(queue.RegistrationCreatedQueue))
}
