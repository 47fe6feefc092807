package registration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// CreateTicket sells a ticket of in.TypeID to userID.  A ticket with
// nothing to pay is Confirmed at once; otherwise it stays Provisional
// until the payment settles.  Ticket types linked to another store also
// produce a free secondary ticket there.
func (s *Service) CreateTicket(ctx context.Context, userID uint64, in TicketInput) (Result, error) {
	now := s.Now().UTC()

	store, tt, err := s.storeAndType(ctx, in.StoreID, in.TypeID)
	if err != nil {
		return Result{}, err
	}
	if !store.InWindow(now) {
		return Result{}, apperr.Deadline("outside_window", "tickets are not on sale")
	}

	exists, err := s.deps.Tickets.ExistsForUser(ctx, userID, store.ID)
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	if exists {
		return Result{}, errDuplicateTicket
	}
	if !store.Accepts(in.PaymentMethod) {
		return Result{}, apperr.Invalid("payment_method_not_allowed", "payment method is not accepted")
	}

	user, err := s.user(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	q, err := s.price(ctx, tt.Price, in.PaymentMethod, in.VoucherID,
		model.VoucherTarget{Kind: model.TargetTicket, ID: store.ID, TypeID: &tt.ID})
	if err != nil {
		return Result{}, err
	}
	if err := payable(q.amount, in.PaymentMethod, tt.ProductRef); err != nil {
		return Result{}, err
	}
	if err := s.redeem(ctx, q); err != nil {
		return Result{}, err
	}

	status := model.StatusConfirmed
	if q.amount > 0 {
		status = model.StatusProvisional
	}
	ticket := &model.Ticket{
		UserID:        &userID,
		StoreID:       store.ID,
		TypeID:        tt.ID,
		PaymentMethod: in.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Tickets.Create(ctx, ticket, status); err != nil {
		s.release(ctx, q)
		if errors.Is(err, repository.ErrDuplicate) {
			return Result{}, errDuplicateTicket
		}
		return Result{}, apperr.Wrap(err)
	}

	res := Result{BankTransferCode: BankTransferCode(now, s.loc)}
	paymentID, err := s.settle(ctx, paymentPlan{
		userID:     &userID,
		email:      user.Email,
		method:     in.PaymentMethod,
		amount:     q.amount,
		productRef: tt.ProductRef,
		bankCode:   res.BankTransferCode,
		target:     model.TicketTarget(ticket.ID),
		collection: model.CollectionTickets,
		now:        now,
	}, &res)
	if err != nil {
		return Result{}, err
	}

	res.PublicID, err = s.assign(ctx, model.CollectionTickets, ticket.ID, store.ID, paymentID)
	if err != nil {
		return Result{}, err
	}

	if tt.HasLinkedTicket() {
		s.linkedTicket(ctx, ticket, *tt.AnotherStoreID, *tt.AnotherTypeID, status, now)
	}

	s.deps.Notifier.RegistrationCreated(ctx, queue.RegistrationCreatedEvent{
		Collection: string(model.CollectionTickets),
		PublicID:   res.PublicID,
		TargetName: store.Name,
		OptionName: tt.Name,
		Method:     string(in.PaymentMethod),
		Amount:     q.amount,
		CreatedAt:  now.Format(timeLayout),
	})
	return res, nil
}

var errDuplicateTicket = apperr.Exists("duplicate_registration", "already holds a ticket from this store")

func (s *Service) storeAndType(ctx context.Context, storeID, typeID uint64) (*model.Store, *model.TicketType, error) {
	store, err := s.deps.Stores.Get(ctx, storeID)
	if errors.Is(err, repository.ErrStoreNotFound) {
		return nil, nil, apperr.Missing("store_not_found", "store does not exist")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(err)
	}
	tt, err := s.deps.Stores.TicketType(ctx, store.ID, typeID)
	if errors.Is(err, repository.ErrTicketTypeNotFound) {
		return nil, nil, apperr.Missing("ticket_type_not_found", "ticket type does not exist")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(err)
	}
	return store, tt, nil
}

// linkedTicket issues the free secondary ticket that comes with the
// primary.  It pays online at price zero, takes no voucher, shares the
// primary's status and publishes nothing.  Failures are logged only: the
// primary purchase already succeeded.
func (s *Service) linkedTicket(ctx context.Context, primary *model.Ticket, storeID, typeID uint64, status model.ApplicationStatus, now time.Time) {
	log := s.log.With(zap.Uint64("parent_ticket_id", primary.ID), zap.Uint64("store_id", storeID))
	if _, _, err := s.storeAndType(ctx, storeID, typeID); err != nil {
		log.Error("linked ticket target missing", zap.Error(err))
		return
	}
	parent := primary.ID
	child := &model.Ticket{
		UserID:         primary.UserID,
		Email:          primary.Email,
		StoreID:        storeID,
		TypeID:         typeID,
		PaymentMethod:  model.MethodOnline,
		ParentTicketID: &parent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Tickets.Create(ctx, child, status); err != nil {
		log.Error("linked ticket not created", zap.Error(err))
		return
	}
	if _, err := s.assign(ctx, model.CollectionTickets, child.ID, storeID, nil); err != nil {
		log.Error("linked ticket identifier not assigned", zap.Uint64("ticket_id", child.ID), zap.Error(err))
	}
}
