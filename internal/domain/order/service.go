package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

// Sentinel errors for order validation. Messages are shown to callers as is.
var (
	ErrInvalidMode          = errors.New("mode must be table or delivery")
	ErrServiceTypeMode      = errors.New("service type is only allowed for table orders")
	ErrInvalidServiceType   = errors.New("service type must be table or takeaway")
	ErrEmptyItems           = errors.New("items required")
	ErrEmailRequired        = errors.New("email required")
	ErrPhoneRequired        = errors.New("phone required for delivery")
	ErrDeliveryLocation     = errors.New("delivery address required")
	ErrInvalidPaymentMethod = errors.New("payment method must be upi or cod")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrRiderIncomplete      = errors.New("rider name and phone required")
)

// InvalidQuantityError indicates a line item with quantity below one.
type InvalidQuantityError struct {
	Name string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for %s", e.Name)
}

const (
	placedNote = "Order placed"

	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Mode          Mode
	ServiceType   ServiceType
	TableID       string
	Contact       customer.Contact
	CustomerEmail string
	CustomerID    string
	Items         []LineItem
	PaymentMethod PaymentMethod
}

// email returns the address the order is filed under.
func (r CreateRequest) email() string {
	if r.CustomerEmail != "" {
		return customer.NormalizeEmail(r.CustomerEmail)
	}
	return customer.NormalizeEmail(r.Contact.Email)
}

// CreateResult holds the output of a successfully placed order.
type CreateResult struct {
	ID      string
	Code    string
	UPILink string
	Order   *Order
}

// Config holds the optional collaborators of the Service.
type Config struct {
	Payee          Payee
	Publisher      Publisher
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service owns the order lifecycle: creation, status and payment
// transitions, ETA and rider assignment, and queries.
type Service struct {
	orders    Repository
	customers Customers
	tx        Transactor
	codes     *CodeGenerator
	feed      Publisher
	payee     Payee
	now       func() time.Time

	tracer        trace.Tracer
	created       metric.Int64Counter
	statusChanges metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	customers Customers,
	tx Transactor,
	codes *CodeGenerator,
	cfg Config,
) (*Service, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}

	meter := cfg.MeterProvider.Meter("cafe/order")
	created, err := meter.Int64Counter("cafe.orders.created",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	statusChanges, err := meter.Int64Counter("cafe.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create status counter")
	}

	return &Service{
		orders:        orders,
		customers:     customers,
		tx:            tx,
		codes:         codes,
		feed:          cfg.Publisher,
		payee:         cfg.Payee,
		now:           time.Now,
		tracer:        cfg.TracerProvider.Tracer("cafe/order"),
		created:       created,
		statusChanges: statusChanges,
	}, nil
}

// Validate checks req without side effects.
func (req CreateRequest) Validate() error {
	if !req.Mode.Valid() {
		return ErrInvalidMode
	}
	if !req.ServiceType.Valid() {
		return ErrInvalidServiceType
	}
	if req.ServiceType != "" && req.Mode != ModeTable {
		return ErrServiceTypeMode
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return &InvalidQuantityError{Name: it.Name}
		}
	}
	if req.email() == "" {
		return ErrEmailRequired
	}
	if !req.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if req.Mode == ModeDelivery {
		if strings.TrimSpace(req.Contact.Phone) == "" {
			return ErrPhoneRequired
		}
		if !req.Contact.HasDeliveryLocation() {
			return ErrDeliveryLocation
		}
	}
	return nil
}

// Create places an order. It assigns a code, prices the items, reconciles
// the customer, derives the payment intent and seeds the status history, then
// stores the order and bumps the customer's aggregates in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *CreateResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.String("order.mode", string(req.Mode))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	code := s.codes.Next(ctx)
	totals := pricing.Compute(Lines(req.Items), req.Mode)

	email := req.email()
	contact := req.Contact
	contact.Email = email
	customerID, err := s.customers.Reconcile(ctx, email, contact, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "reconcile customer")
	}

	now := s.now()
	o := &Order{
		Code:          code,
		Mode:          req.Mode,
		ServiceType:   req.ServiceType,
		TableID:       req.TableID,
		CustomerID:    customerID,
		CustomerEmail: email,
		Contact:       contact,
		Payment:       s.payment(req.PaymentMethod, totals.GrandTotal, code),
		Status:        StatusSubmitted,
		History:       []HistoryEntry{{Status: StatusSubmitted, At: now, Note: placedNote}},
		Items:         slices.Clone(req.Items),
		Totals:        totals,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.persist(ctx, o)
	if errors.Is(err, ErrDuplicateCode) {
		o.Code = s.codes.Fallback()
		o.Payment = s.payment(req.PaymentMethod, totals.GrandTotal, o.Code)
		zctx.From(ctx).Warn("Order code collided on insert, retrying with fallback",
			zap.String("code", code), zap.String("fallback", o.Code))
		err = s.persist(ctx, o)
	}
	if err != nil {
		return nil, errors.Wrap(err, "persist order")
	}

	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(o.Mode)),
		attribute.String("payment_method", string(o.Payment.Method)),
	))
	span.SetAttributes(attribute.String("order.code", o.Code))
	s.publish(ctx, EventCreated, o)

	return &CreateResult{
		ID:      o.ID,
		Code:    o.Code,
		UPILink: o.Payment.UPILink,
		Order:   o,
	}, nil
}

// persist writes the order and then the customer aggregates. A failed order
// write rolls back before the aggregates are touched.
func (s *Service) persist(ctx context.Context, o *Order) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if err := s.customers.RecordOrder(ctx, o.CustomerID, o.Totals.GrandTotal, o.CreatedAt); err != nil {
			return errors.Wrap(err, "record customer order")
		}
		return nil
	})
}

func (s *Service) payment(method PaymentMethod, amount decimal.Decimal, code string) Payment {
	if method == PaymentUPI {
		return Payment{
			Method:  PaymentUPI,
			Status:  PaymentPending,
			Amount:  amount,
			UPILink: UPILink(s.payee, amount, code),
		}
	}
	return Payment{
		Method: PaymentCOD,
		Status: PaymentPendingCash,
		Amount: amount,
	}
}

// UpdateStatus appends a history entry and moves the order to status. Any
// status may follow any other.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, note string) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	o, err := s.orders.AppendStatus(ctx, id, HistoryEntry{Status: status, At: s.now(), Note: note})
	if err != nil {
		return nil, err
	}

	s.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	s.publish(ctx, EventStatus, o)
	return o, nil
}

// MarkPayment sets the payment status. An empty reference keeps the
// current one.
func (s *Service) MarkPayment(ctx context.Context, id string, status PaymentStatus, reference string) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidPaymentStatus
	}
	o, err := s.orders.UpdatePayment(ctx, id, status, reference, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventPayment, o)
	return o, nil
}

// SetEta sets or, with nil, clears the estimated minutes to ready.
func (s *Service) SetEta(ctx context.Context, id string, minutes *int) (*Order, error) {
	o, err := s.orders.SetEta(ctx, id, minutes, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventEta, o)
	return o, nil
}

// AssignRider sets or, with nil, clears the delivery rider.
func (s *Service) AssignRider(ctx context.Context, id string, rider *Rider) (*Order, error) {
	if rider != nil && (strings.TrimSpace(rider.Name) == "" || strings.TrimSpace(rider.Phone) == "") {
		return nil, ErrRiderIncomplete
	}
	o, err := s.orders.SetRider(ctx, id, rider, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventRider, o)
	return o, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetByCode returns an order by its human code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Order, error) {
	return s.orders.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// ListLive returns the kitchen board: orders not yet served, delivered or
// cancelled, and not paid.
func (s *Service) ListLive(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListLive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list live orders")
	}
	return orders, nil
}

// ListRecent returns up to limit orders, newest first. Non-positive limits
// use the default; limits are capped.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)
	orders, err := s.orders.ListRecent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent orders")
	}
	return orders, nil
}

// ListByCustomer returns the union of orders filed under customerID and
// under email, each order once, newest first. Either key may be empty.
func (s *Service) ListByCustomer(ctx context.Context, customerID, email string) ([]Order, error) {
	email = customer.NormalizeEmail(email)

	var byID, byEmail []Order
	g, gctx := errgroup.WithContext(ctx)
	if customerID != "" {
		g.Go(func() error {
			orders, err := s.orders.ListByCustomerID(gctx, customerID)
			if err != nil {
				return errors.Wrap(err, "list by customer id")
			}
			byID = orders
			return nil
		})
	}
	if email != "" {
		g.Go(func() error {
			orders, err := s.orders.ListByEmail(gctx, email)
			if err != nil {
				return errors.Wrap(err, "list by email")
			}
			byEmail = orders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(byID)+len(byEmail))
	out := make([]Order, 0, len(byID)+len(byEmail))
	for _, list := range [][]Order{byID, byEmail} {
		for _, o := range list {
			if _, ok := seen[o.ID]; ok {
				continue
			}
			seen[o.ID] = struct{}{}
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Service) publish(ctx context.Context, kind EventKind, o *Order) {
	if err := s.feed.Publish(ctx, NewEvent(kind, o)); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("order_id", o.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
