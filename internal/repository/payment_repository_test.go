package repository_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/repository"
	"github.com/iliyamo/circle-registration/internal/testdb"
)

func str(s string) *string { return &s }

func newPayment(userID uint64, ref string, at time.Time) repository.NewPayment {
	return repository.NewPayment{
		UserID:           &userID,
		ProductRef:       ref,
		Method:           model.MethodOnline,
		BankTransferCode: "011200",
		Amount:           1000,
		Target:           model.TicketTarget(1),
		CreatedAt:        at,
	}
}

func TestPaymentCreateAndGet(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, newPayment(9, "prod_A", testdb.Now))
	require.NoError(t, err)

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, p.Status)
	require.Equal(t, model.TicketTarget(1), p.Target)
	require.Equal(t, uint64(9), *p.UserID)
	require.Nil(t, p.GatewayIntentID)
	require.Nil(t, p.Result.CardBrand)
	require.True(t, p.CreatedAt.Equal(testdb.Now))

	_, err = repo.GetByID(ctx, id+1)
	require.ErrorIs(t, err, repository.ErrPaymentNotFound)
}

func TestPaymentFindOneTieBreak(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	ctx := context.Background()

	later, err := repo.Create(ctx, newPayment(1, "prod_A", testdb.Now.Add(time.Minute)))
	require.NoError(t, err)
	earliest, err := repo.Create(ctx, newPayment(1, "prod_A", testdb.Now))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newPayment(2, "prod_A", testdb.Now.Add(-time.Hour)))
	require.NoError(t, err)

	p, err := repo.FindOne(ctx, 1, model.PaymentPending, model.MethodOnline, []string{"prod_X", "prod_A"})
	require.NoError(t, err)
	require.Equal(t, earliest, p.ID)

	applied, err := repo.ApplyTransition(ctx, earliest, model.PaymentPending, model.PaymentPaid, repository.PaymentUpdate{At: testdb.Now})
	require.NoError(t, err)
	require.True(t, applied)

	p, err = repo.FindOne(ctx, 1, model.PaymentPending, model.MethodOnline, []string{"prod_A"})
	require.NoError(t, err)
	require.Equal(t, later, p.ID)

	_, err = repo.FindOne(ctx, 1, model.PaymentPending, model.MethodBankTransfer, []string{"prod_A"})
	require.ErrorIs(t, err, repository.ErrPaymentNotFound)
	_, err = repo.FindOne(ctx, 1, model.PaymentPending, model.MethodOnline, nil)
	require.ErrorIs(t, err, repository.ErrPaymentNotFound)
}

func TestPaymentApplyTransitionOnce(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, newPayment(1, "prod_A", testdb.Now))
	require.NoError(t, err)

	first := testdb.Now.Add(time.Minute)
	applied, err := repo.ApplyTransition(ctx, id, model.PaymentPending, model.PaymentPaid,
		repository.PaymentUpdate{IntentID: str("pi_1"), SessionID: str("cs_1"), At: first})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.ApplyTransition(ctx, id, model.PaymentPending, model.PaymentPaid,
		repository.PaymentUpdate{IntentID: str("pi_other"), At: first.Add(time.Hour)})
	require.NoError(t, err)
	require.False(t, applied)

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPaid, p.Status)
	require.Equal(t, "pi_1", *p.GatewayIntentID)
	require.Equal(t, "cs_1", *p.GatewaySessionID)
	require.True(t, p.UpdatedAt.Equal(first))

	found, err := repo.FindByGatewayIntentID(ctx, "pi_1")
	require.NoError(t, err)
	require.Equal(t, id, found.ID)
}

func TestPaymentApplyTransitionConcurrent(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	id, err := repo.Create(context.Background(), newPayment(1, "prod_A", testdb.Now))
	require.NoError(t, err)

	var applied atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			ok, err := repo.ApplyTransition(context.Background(), id, model.PaymentPending, model.PaymentPaid, repository.PaymentUpdate{})
			if ok {
				applied.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, applied.Load())
}

func TestPaymentApplyTransitionRejectsBadEdges(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	ctx := context.Background()
	id, err := repo.Create(ctx, newPayment(1, "prod_A", testdb.Now))
	require.NoError(t, err)

	for _, edge := range [][2]model.PaymentStatus{
		{model.PaymentPaid, model.PaymentPending},
		{model.PaymentFailure, model.PaymentPending},
		{model.PaymentPending, model.PaymentRefunded},
		{model.PaymentRefunded, model.PaymentPaid},
	} {
		_, err := repo.ApplyTransition(ctx, id, edge[0], edge[1], repository.PaymentUpdate{})
		require.ErrorIs(t, err, repository.ErrInvalidTransition, "%s -> %s", edge[0], edge[1])
	}

	_, err = repo.ApplyTransition(ctx, id+100, model.PaymentPending, model.PaymentPaid, repository.PaymentUpdate{})
	require.ErrorIs(t, err, repository.ErrPaymentNotFound)

	ok, err := repo.ApplyTransition(ctx, id, model.PaymentPending, model.PaymentFailure, repository.PaymentUpdate{})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.ApplyTransition(ctx, id, model.PaymentPending, model.PaymentPaid, repository.PaymentUpdate{})
	require.NoError(t, err)
	require.False(t, ok, "a failed payment never returns to the pending graph")
}

func TestPaymentMergeResultKeepsStatus(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewPaymentRepo(db)
	ctx := context.Background()
	id, err := repo.Create(ctx, newPayment(1, "prod_A", testdb.Now))
	require.NoError(t, err)

	require.NoError(t, repo.MergeResult(ctx, id, model.PaymentResult{CardBrand: str("visa")}, testdb.Now))
	require.NoError(t, repo.MergeResult(ctx, id, model.PaymentResult{ReceiptURL: str("https://pay.example/r/1")}, testdb.Now))
	require.NoError(t, repo.AttachSession(ctx, id, "cs_9", testdb.Now))

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, p.Status)
	require.Equal(t, "visa", *p.Result.CardBrand)
	require.Equal(t, "https://pay.example/r/1", *p.Result.ReceiptURL)
	require.Equal(t, "cs_9", *p.GatewaySessionID)
}
