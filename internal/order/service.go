package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/traces"
	"github.com/novamarkt/platform/internal/trust"
	"github.com/novamarkt/platform/internal/user"
)

// ListingSource resolves listings referenced by orders.
type ListingSource interface {
	Get(ctx context.Context, id string) (*listing.Listing, error)
}

// TrustRefresher recomputes a user's trust snapshot after order events.
// Refresh failures are logged, never propagated.
type TrustRefresher interface {
	Refresh(ctx context.Context, userID string) (*trust.Snapshot, error)
}

// EventPublisher fans out realtime events to connected clients.
type EventPublisher interface {
	Publish(eventType string, data map[string]any)
}

// Config holds the tunables of the order service.
type Config struct {
	FeeRateBPS   int           // platform fee in basis points
	Currency     string        // ISO currency for new orders
	ReleaseAfter time.Duration // DELIVERED → COMPLETED window
	ProviderName string        // payment provider label on payment rows
}

// Service implements the order lifecycle.
type Service struct {
	store    Store
	listings ListingSource
	users    user.Store
	provider payments.Provider
	payouts  payments.Transferrer // optional, nil disables payouts
	audits   audit.Store
	trust    TrustRefresher
	events   EventPublisher
	cfg      Config
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithPayouts enables best-effort seller payouts when an order completes.
func WithPayouts(t payments.Transferrer) Option {
	return func(s *Service) { s.payouts = t }
}

// NewService creates an order service.
func NewService(store Store, listings ListingSource, users user.Store, provider payments.Provider, audits audit.Store, trustSvc TrustRefresher, events EventPublisher, cfg Config, opts ...Option) *Service {
	if cfg.ReleaseAfter <= 0 {
		cfg.ReleaseAfter = 48 * time.Hour
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "stripe"
	}
	s := &Service{
		store:    store,
		listings: listings,
		users:    users,
		provider: provider,
		audits:   audits,
		trust:    trustSvc,
		events:   events,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places an order for a listing. Repeat calls by the same buyer
// for the same listing return the existing active order; the listing is
// reserved exactly once.
func (s *Service) Create(ctx context.Context, buyerID, listingID, ip string) (_ *Order, _ bool, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.Create",
		traces.UserID(buyerID),
		traces.ListingID(listingID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	if l.SellerID == buyerID {
		return nil, false, ErrSelfPurchase
	}

	if existing, err := s.store.FindActiveByBuyerAndListing(ctx, buyerID, listingID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		return nil, false, err
	}

	now := time.Now()
	o := &Order{
		ID:          idgen.WithPrefix("ord_"),
		ListingID:   listingID,
		BuyerID:     buyerID,
		SellerID:    l.SellerID,
		Status:      StatusPending,
		TotalAmount: l.PriceCents,
		FeeCents:    payments.CalcFee(l.PriceCents, s.cfg.FeeRateBPS),
		Currency:    s.cfg.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateReserving(ctx, o); err != nil {
		// A concurrent create may have reserved the listing first; in
		// that case the idempotency contract says return that order.
		if errors.Is(err, listing.ErrListingUnavailable) {
			if existing, findErr := s.store.FindActiveByBuyerAndListing(ctx, buyerID, listingID); findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	_ = audit.Record(ctx, s.audits, buyerID, audit.ActionOrderCreate, ip, map[string]any{
		"orderId":   o.ID,
		"listingId": listingID,
	})
	metrics.OrderTransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	s.publishOrder(o)

	logging.L(ctx).Info("order created",
		"order_id", o.ID,
		"listing_id", listingID,
		"buyer_id", buyerID,
		"total_amount", o.TotalAmount,
	)
	return o, true, nil
}

// PayResult is what the buyer needs to complete checkout client-side.
type PayResult struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"paymentIntentId"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Pay creates (or reuses) the payment intent for a PENDING order.
func (s *Service) Pay(ctx context.Context, orderID, actorID, ip string) (_ *PayResult, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.Pay",
		traces.OrderID(orderID),
		traces.UserID(actorID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, ErrForbidden
	}
	if o.Status != StatusPending {
		return nil, &ConflictError{Actual: o.Status, Expected: []Status{StatusPending}}
	}

	var intent *payments.Intent
	pay, err := s.store.GetPaymentByOrder(ctx, orderID)
	switch {
	case err == nil:
		intent, err = s.provider.RetrieveIntent(ctx, pay.IntentID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, ErrPaymentNotFound):
		l, lerr := s.listings.Get(ctx, o.ListingID)
		description := "Novamarkt"
		if lerr == nil {
			description = "Novamarkt - " + l.Title
		}
		intent, err = s.provider.CreateIntent(ctx, payments.CreateIntentInput{
			AmountCents: o.TotalAmount,
			Currency:    o.Currency,
			Description: description,
			Metadata: map[string]string{
				"orderId":   o.ID,
				"listingId": o.ListingID,
				"buyerId":   o.BuyerID,
				"sellerId":  o.SellerID,
			},
		})
		if err != nil {
			return nil, err
		}
		now := time.Now()
		err = s.store.CreatePayment(ctx, &Payment{
			ID:          idgen.WithPrefix("pay_"),
			OrderID:     o.ID,
			Provider:    s.cfg.ProviderName,
			IntentID:    intent.ID,
			Status:      PaymentPending,
			AmountCents: o.TotalAmount,
			Currency:    o.Currency,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	_ = audit.Record(ctx, s.audits, actorID, audit.ActionIntentCreated, ip, map[string]any{
		"orderId":         o.ID,
		"paymentIntentId": intent.ID,
	})
	return &PayResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		AmountCents:  o.TotalAmount,
		Currency:     o.Currency,
	}, nil
}

// HandleWebhook applies a payment provider event. Unknown event types
// are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, ev *payments.WebhookEvent) (retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.HandleWebhook",
		attribute.String("event.type", ev.Type),
		traces.OrderID(ev.OrderID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	switch ev.Type {
	case payments.EventPaymentSucceeded:
		if ev.OrderID == "" {
			return nil
		}
		if err := s.store.MarkPaid(ctx, ev.OrderID, ev.IntentID); err != nil {
			return err
		}
		_ = audit.Record(ctx, s.audits, "", audit.ActionPaymentSucceeded, "", map[string]any{
			"orderId":         ev.OrderID,
			"paymentIntentId": ev.IntentID,
		})
		metrics.OrderTransitionsTotal.WithLabelValues(string(StatusPaid)).Inc()
		if o, err := s.store.Get(ctx, ev.OrderID); err == nil {
			s.publishOrder(o)
		}
		logging.L(ctx).Info("payment succeeded", "order_id", ev.OrderID, "intent_id", ev.IntentID)

	case payments.EventPaymentFailed:
		if err := s.store.MarkPaymentFailed(ctx, ev.IntentID); err != nil {
			return err
		}
		_ = audit.Record(ctx, s.audits, "", audit.ActionPaymentFailed, "", map[string]any{
			"paymentIntentId": ev.IntentID,
		})
		logging.L(ctx).Warn("payment failed", "intent_id", ev.IntentID)
	}
	return nil
}

// MarkShipped moves PAID → SHIPPED. Seller or admin only.
func (s *Service) MarkShipped(ctx context.Context, orderID, actorID, tracking, carrier, ip string) (_ *Order, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.MarkShipped",
		traces.OrderID(orderID),
		traces.UserID(actorID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != actorID {
		actor, err := s.users.Get(ctx, actorID)
		if err != nil || !actor.IsAdmin() {
			return nil, ErrForbidden
		}
	}
	if o.Status != StatusPaid {
		return nil, &ConflictError{Actual: o.Status, Expected: []Status{StatusPaid}}
	}

	o.Status = StatusShipped
	o.TrackingCode = tracking
	o.Carrier = carrier
	o.UpdatedAt = time.Now()
	if err := s.store.Transition(ctx, StatusPaid, o); err != nil {
		return nil, err
	}

	_ = audit.Record(ctx, s.audits, actorID, audit.ActionOrderShipped, ip, map[string]any{
		"orderId":  o.ID,
		"tracking": tracking,
	})
	metrics.OrderTransitionsTotal.WithLabelValues(string(StatusShipped)).Inc()
	s.publishOrder(o)
	return o, nil
}

// ConfirmDelivery moves SHIPPED → DELIVERED and stamps the delivery
// time, which starts the auto-release window. Buyer only.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID, actorID, ip string) (_ *Order, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.ConfirmDelivery",
		traces.OrderID(orderID),
		traces.UserID(actorID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, ErrForbidden
	}
	if o.Status != StatusShipped {
		return nil, &ConflictError{Actual: o.Status, Expected: []Status{StatusShipped}}
	}

	now := time.Now()
	o.Status = StatusDelivered
	o.CompletedAt = &now
	o.UpdatedAt = now
	if err := s.store.Transition(ctx, StatusShipped, o); err != nil {
		return nil, err
	}

	_ = audit.Record(ctx, s.audits, actorID, audit.ActionOrderDelivered, ip, map[string]any{
		"orderId": o.ID,
	})
	metrics.OrderTransitionsTotal.WithLabelValues(string(StatusDelivered)).Inc()
	s.publishOrder(o)
	return o, nil
}

// OpenDispute creates the dispute and moves the order to DISPUTED in
// one atomic unit. Buyer only, from PAID/SHIPPED/DELIVERED, at most one
// dispute per order.
func (s *Service) OpenDispute(ctx context.Context, orderID, actorID, reason, ip string) (_ *Dispute, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.OpenDispute",
		traces.OrderID(orderID),
		traces.UserID(actorID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, ErrForbidden
	}
	if _, err := s.store.GetDisputeByOrder(ctx, orderID); err == nil {
		return nil, ErrDisputeExists
	} else if !errors.Is(err, ErrDisputeNotFound) {
		return nil, err
	}

	d := &Dispute{
		ID:         idgen.WithPrefix("dsp_"),
		OrderID:    orderID,
		OpenedByID: actorID,
		Reason:     reason,
		Status:     DisputeOpen,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateDispute(ctx, d); err != nil {
		return nil, err
	}

	_ = audit.Record(ctx, s.audits, actorID, audit.ActionDisputeOpened, ip, map[string]any{
		"orderId": orderID,
		"reason":  reason,
	})
	metrics.DisputesOpenedTotal.Inc()
	metrics.OrderTransitionsTotal.WithLabelValues(string(StatusDisputed)).Inc()

	o.Status = StatusDisputed
	s.publishOrder(o)
	s.refreshTrust(ctx, o.SellerID)

	logging.L(ctx).Info("dispute opened",
		"dispute_id", d.ID,
		"order_id", orderID,
		"buyer_id", actorID,
	)
	return d, nil
}

// ResolveDispute closes a dispute and settles the order: a ruling for
// the buyer refunds the order and relists the item, a ruling for the
// seller completes the order and marks the listing sold.
func (s *Service) ResolveDispute(ctx context.Context, disputeID string, outcome DisputeStatus) (_ *Dispute, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.ResolveDispute",
		attribute.String("dispute.id", disputeID),
		attribute.String("dispute.outcome", string(outcome)),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != DisputeOpen {
		return nil, ErrInvalidOutcome
	}

	var (
		orderStatus   Status
		listingStatus listing.Status
	)
	switch outcome {
	case DisputeResolvedBuyer:
		orderStatus = StatusRefunded
		listingStatus = listing.StatusActive
	case DisputeResolvedSeller:
		orderStatus = StatusCompleted
		listingStatus = listing.StatusSold
	default:
		return nil, ErrInvalidOutcome
	}

	now := time.Now()
	d.Status = outcome
	d.ResolvedAt = &now
	if err := s.store.ResolveDispute(ctx, d, orderStatus, listingStatus); err != nil {
		return nil, err
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(orderStatus)).Inc()
	if o, err := s.store.Get(ctx, d.OrderID); err == nil {
		s.publishOrder(o)
		s.refreshTrust(ctx, o.SellerID)
		if orderStatus == StatusCompleted {
			s.payoutSeller(ctx, o)
		}
	}
	return d, nil
}

// Cancel aborts a PENDING order and returns the listing to ACTIVE.
// Buyer only.
func (s *Service) Cancel(ctx context.Context, orderID, actorID, ip string) (_ *Order, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.Cancel",
		traces.OrderID(orderID),
		traces.UserID(actorID),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, ErrForbidden
	}
	if o.Status != StatusPending {
		return nil, &ConflictError{Actual: o.Status, Expected: []Status{StatusPending}}
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	if err := s.store.CancelReleasing(ctx, o); err != nil {
		return nil, err
	}

	_ = audit.Record(ctx, s.audits, actorID, audit.ActionOrderCancelled, ip, map[string]any{
		"orderId": o.ID,
	})
	metrics.OrderTransitionsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	s.publishOrder(o)
	return o, nil
}

// Get returns an order for one of its participants or an admin.
func (s *Service) Get(ctx context.Context, orderID, actorID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID && o.SellerID != actorID {
		actor, err := s.users.Get(ctx, actorID)
		if err != nil || !actor.IsAdmin() {
			return nil, ErrForbidden
		}
	}
	return o, nil
}

// ListMine returns the actor's orders, newest first.
func (s *Service) ListMine(ctx context.Context, actorID string, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByUser(ctx, actorID, limit)
}

// sweepBatchSize caps how many orders one sweep run picks up.
const sweepBatchSize = 100

// RunAutoReleaseSweep completes every DELIVERED order whose release
// window has elapsed undisputed. Safe to run concurrently with itself:
// each order's transition is conditional, so a double fire just finds
// nothing left to do.
func (s *Service) RunAutoReleaseSweep(ctx context.Context) (_ int, retErr error) {
	ctx, span := traces.StartSpan(ctx, "order.AutoReleaseSweep")
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	threshold := time.Now().Add(-s.cfg.ReleaseAfter)
	eligible, err := s.store.ListAutoReleasable(ctx, threshold, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, o := range eligible {
		entry := &audit.Entry{
			ID:     idgen.WithPrefix("aud_"),
			Action: audit.ActionOrderAutoReleased,
			Meta: map[string]any{
				"orderId":     o.ID,
				"sellerId":    o.SellerID,
				"amountCents": o.TotalAmount,
			},
			CreatedAt: time.Now(),
		}
		if err := s.store.AutoRelease(ctx, o.ID, entry); err != nil {
			if errors.Is(err, ErrConflict) {
				continue // raced with a dispute or another sweep
			}
			logging.L(ctx).Error("auto-release failed", "order_id", o.ID, "error", err)
			continue
		}
		released++
		metrics.OrdersAutoReleasedTotal.Inc()
		metrics.OrderTransitionsTotal.WithLabelValues(string(StatusCompleted)).Inc()

		o.Status = StatusCompleted
		s.publishOrder(o)
		s.refreshTrust(ctx, o.SellerID)
		s.payoutSeller(ctx, o)
		logging.L(ctx).Info("order auto-released", "order_id", o.ID, "seller_id", o.SellerID)
	}
	span.SetAttributes(attribute.Int("orders.released", released))
	return released, nil
}

// publishOrder emits a best-effort realtime event after the transaction
// has committed.
func (s *Service) publishOrder(o *Order) {
	s.events.Publish("order.updated", map[string]any{
		"orderId":  o.ID,
		"status":   string(o.Status),
		"buyerId":  o.BuyerID,
		"sellerId": o.SellerID,
	})
}

// refreshTrust recomputes a user's trust snapshot, logging failures.
func (s *Service) refreshTrust(ctx context.Context, userID string) {
	if _, err := s.trust.Refresh(ctx, userID); err != nil {
		logging.L(ctx).Warn("trust refresh failed", "user_id", userID, "error", err)
	}
}

// payoutSeller transfers the escrowed amount minus the platform fee to
// the seller after the order has completed. Best effort: a failed
// transfer is logged for manual settlement, the completion stands.
func (s *Service) payoutSeller(ctx context.Context, o *Order) {
	if s.payouts == nil {
		return
	}
	amount := o.TotalAmount - o.FeeCents
	tr, err := s.payouts.Transfer(ctx, payments.TransferInput{
		AmountCents: amount,
		Currency:    o.Currency,
		Destination: o.SellerID,
		OrderID:     o.ID,
	})
	if err != nil {
		logging.L(ctx).Error("seller payout failed",
			"order_id", o.ID,
			"seller_id", o.SellerID,
			"amount_cents", amount,
			"error", err,
		)
		return
	}
	_ = audit.Record(ctx, s.audits, "", audit.ActionSellerPayout, "", map[string]any{
		"orderId":     o.ID,
		"sellerId":    o.SellerID,
		"transferId":  tr.ID,
		"amountCents": amount,
	})
	logging.L(ctx).Info("seller payout created", "order_id", o.ID, "transfer_id", tr.ID)
}
