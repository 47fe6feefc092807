package registration

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// Admin is an operator acting for one organization.
type Admin struct {
	UserID         uint64
	OrganizationID uint64
}

// TicketEcho is the full view of an operator-issued ticket.  It carries
// no internal record or user ids.
type TicketEcho struct {
	PublicID      string              `json:"public_id"`
	StoreID       uint64              `json:"store_id"`
	TypeID        uint64              `json:"type_id"`
	Email         string              `json:"email"`
	LinkedUser    bool                `json:"linked_user"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Status        string              `json:"status"`
	CreatedAt     string              `json:"created_at"`
}

// CreateTicketForAdmin issues a ticket on behalf of email.  The operator
// must belong to the store's organization.  Sale window, duplicate and
// payment checks do not apply and the ticket is Confirmed at once.  An
// email unknown to the identity provider yields a standalone ticket
// with no owning user.
func (s *Service) CreateTicketForAdmin(ctx context.Context, admin Admin, storeID uint64, email string, typeID uint64) (TicketEcho, error) {
	now := s.Now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return TicketEcho{}, apperr.Invalid("email_required", "email is required")
	}

	store, tt, err := s.storeAndType(ctx, storeID, typeID)
	if err != nil {
		return TicketEcho{}, err
	}
	if store.OrganizationID != admin.OrganizationID {
		return TicketEcho{}, apperr.Denied("organization_mismatch", "store belongs to another organization")
	}

	ticket := &model.Ticket{
		Email:         &email,
		StoreID:       store.ID,
		TypeID:        tt.ID,
		PaymentMethod: model.MethodOnline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	u, err := s.deps.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		ticket.UserID = &u.ID
	case errors.Is(err, repository.ErrUserNotFound):
	default:
		return TicketEcho{}, apperr.Wrap(err)
	}

	if err := s.deps.Tickets.Create(ctx, ticket, model.StatusConfirmed); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return TicketEcho{}, errDuplicateTicket
		}
		return TicketEcho{}, apperr.Wrap(err)
	}
	pid, err := s.assign(ctx, model.CollectionTickets, ticket.ID, store.ID, nil)
	if err != nil {
		return TicketEcho{}, err
	}

	s.deps.Notifier.RegistrationCreated(ctx, queue.RegistrationCreatedEvent{
		Collection: string(model.CollectionTickets),
		PublicID:   pid,
		TargetName: store.Name,
		OptionName: tt.Name,
		Method:     string(ticket.PaymentMethod),
		CreatedAt:  now.Format(timeLayout),
	})
	return TicketEcho{
		PublicID:      pid,
		StoreID:       store.ID,
		TypeID:        tt.ID,
		Email:         email,
		LinkedUser:    ticket.UserID != nil,
		PaymentMethod: ticket.PaymentMethod,
		Status:        model.StatusConfirmed.String(),
		CreatedAt:     now.Format(timeLayout),
	}, nil
}
