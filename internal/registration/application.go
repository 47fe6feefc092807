package registration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// CreateApplication registers userID's circle for a space at an event.
//
// Validation order: window, duplicate, eligibility (adult content and
// payment method), union partner, price and voucher.  Any failure there
// returns before a single write.  Then the voucher is redeemed, the
// application and its status meta are created, the payment is recorded,
// the public identifier is assigned, the union partner is back-filled
// and one created event is published.
func (s *Service) CreateApplication(ctx context.Context, userID uint64, in ApplicationInput) (Result, error) {
	now := s.Now().UTC()

	event, err := s.deps.Events.Get(ctx, in.EventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return Result{}, apperr.Missing("event_not_found", "event does not exist")
	}
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	if !event.InWindow(now) {
		return Result{}, apperr.Deadline("outside_window", "applications are not being accepted")
	}
	space, err := s.deps.Events.SpaceType(ctx, event.ID, in.SpaceTypeID)
	if errors.Is(err, repository.ErrSpaceTypeNotFound) {
		return Result{}, apperr.Missing("space_type_not_found", "space type does not exist")
	}
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}

	exists, err := s.deps.Applications.ExistsForUser(ctx, userID, event.ID)
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	if exists {
		return Result{}, errDuplicateApplication
	}

	if in.IsAdult && !event.AllowAdult {
		return Result{}, apperr.Invalid("adult_not_allowed", "event does not allow adult content")
	}
	if !event.Accepts(in.PaymentMethod) {
		return Result{}, apperr.Invalid("payment_method_not_allowed", "payment method is not accepted")
	}

	var partner *model.Application
	if in.UnionCircleID != nil {
		partner, err = s.unionPartner(ctx, event.ID, *in.UnionCircleID)
		if err != nil {
			return Result{}, err
		}
	}

	user, err := s.user(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	q, err := s.price(ctx, space.Price, in.PaymentMethod, in.VoucherID,
		model.VoucherTarget{Kind: model.TargetApplication, ID: event.ID, TypeID: &space.ID})
	if err != nil {
		return Result{}, err
	}
	if err := payable(q.amount, in.PaymentMethod, space.ProductRef); err != nil {
		return Result{}, err
	}
	if err := s.redeem(ctx, q); err != nil {
		return Result{}, err
	}

	app := &model.Application{
		UserID:        userID,
		EventID:       event.ID,
		SpaceTypeID:   space.ID,
		CircleName:    in.CircleName,
		IsAdult:       in.IsAdult,
		PaymentMethod: in.PaymentMethod,
		UnionCircleID: in.UnionCircleID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Applications.Create(ctx, app, model.StatusProvisional); err != nil {
		s.release(ctx, q)
		if errors.Is(err, repository.ErrDuplicate) {
			return Result{}, errDuplicateApplication
		}
		return Result{}, apperr.Wrap(err)
	}

	res := Result{BankTransferCode: BankTransferCode(now, s.loc)}
	paymentID, err := s.settle(ctx, paymentPlan{
		userID:     &userID,
		email:      user.Email,
		method:     in.PaymentMethod,
		amount:     q.amount,
		productRef: space.ProductRef,
		bankCode:   res.BankTransferCode,
		target:     model.ApplicationTarget(app.ID),
		collection: model.CollectionApplications,
		now:        now,
	}, &res)
	if err != nil {
		return Result{}, err
	}

	res.PublicID, err = s.assign(ctx, model.CollectionApplications, app.ID, event.ID, paymentID)
	if err != nil {
		return Result{}, err
	}

	if partner != nil {
		s.linkPartner(ctx, app, partner, res.PublicID)
	}

	s.deps.Notifier.RegistrationCreated(ctx, queue.RegistrationCreatedEvent{
		Collection: string(model.CollectionApplications),
		PublicID:   res.PublicID,
		TargetName: event.Name,
		OptionName: space.Name,
		Method:     string(in.PaymentMethod),
		Amount:     q.amount,
		CreatedAt:  now.Format(timeLayout),
	})
	return res, nil
}

var errDuplicateApplication = apperr.Exists("duplicate_registration", "already applied to this event")

// unionPartner resolves the application a new one wants to merge with.
func (s *Service) unionPartner(ctx context.Context, eventID uint64, publicID string) (*model.Application, error) {
	partner, err := s.deps.Applications.GetByPublicID(ctx, publicID)
	if errors.Is(err, repository.ErrApplicationNotFound) {
		return nil, errUnionNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if partner.EventID != eventID {
		return nil, errUnionNotFound
	}
	if partner.UnionCircleID != nil {
		return nil, apperr.Exists("union_taken", "partner circle is already linked")
	}
	return partner, nil
}

var errUnionNotFound = apperr.Missing("union_not_found", "partner circle does not exist")

// linkPartner back-fills the partner's pointer now that the new
// application has a public identifier.  If another application claimed
// the partner in the meantime, the new application's pointer is dropped
// so no one-sided link survives.
func (s *Service) linkPartner(ctx context.Context, app, partner *model.Application, publicID string) {
	now := s.Now().UTC()
	ok, err := s.deps.Applications.BackfillUnion(ctx, partner.ID, publicID, now)
	if err != nil {
		s.log.Error("union back-fill failed", zap.Uint64("application_id", app.ID), zap.Error(err))
		return
	}
	if ok {
		return
	}
	s.log.Warn("union partner claimed concurrently, unlinking",
		zap.Uint64("application_id", app.ID), zap.Uint64("partner_id", partner.ID))
	if err := s.deps.Applications.ClearUnion(ctx, app.ID, now); err != nil {
		s.log.Error("union unlink failed", zap.Uint64("application_id", app.ID), zap.Error(err))
	}
}

// user resolves the caller through the identity provider.  The email is
// what the gateway reports back on settlement.
func (s *Service) user(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.deps.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return u, apperr.Missing("user_not_found", "user does not exist")
	}
	if err != nil {
		return u, apperr.Wrap(err)
	}
	return u, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
