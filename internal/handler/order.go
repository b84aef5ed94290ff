package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

type orderLineResponse struct {
	ItemID   string      `json:"itemId,omitempty"`
	Name     string      `json:"name"`
	Price    float64     `json:"price"`
	Quantity int         `json:"quantity"`
	AddOns   []addOnJSON `json:"addOns"`
	Notes    string      `json:"notes,omitempty"`
}

type paymentResponse struct {
	Method    order.PaymentMethod `json:"method"`
	Status    order.PaymentStatus `json:"status"`
	Amount    float64             `json:"amount"`
	Reference string              `json:"reference,omitempty"`
	UPILink   string              `json:"upiLink,omitempty"`
}

type orderResponse struct {
	ID            string               `json:"id"`
	Code          string               `json:"code"`
	Mode          order.Mode           `json:"mode"`
	ServiceType   order.ServiceType    `json:"serviceType,omitempty"`
	TableID       string               `json:"tableId,omitempty"`
	CustomerID    string               `json:"customerId,omitempty"`
	CustomerEmail string               `json:"customerEmail"`
	Contact       contactResponse      `json:"contact"`
	Payment       paymentResponse      `json:"payment"`
	Status        order.Status         `json:"status"`
	History       []order.HistoryEntry `json:"statusHistory"`
	Items         []orderLineResponse  `json:"items"`
	Totals        totalsResponse       `json:"totals"`
	EtaMinutes    *int                 `json:"etaMinutes,omitempty"`
	Rider         *order.Rider         `json:"rider,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Code:          o.Code,
		Mode:          o.Mode,
		ServiceType:   o.ServiceType,
		TableID:       o.TableID,
		CustomerID:    o.CustomerID,
		CustomerEmail: o.CustomerEmail,
		Contact:       toContactResponse(o.Contact),
		Payment: paymentResponse{
			Method:    o.Payment.Method,
			Status:    o.Payment.Status,
			Amount:    o.Payment.Amount.InexactFloat64(),
			Reference: o.Payment.Reference,
			UPILink:   o.Payment.UPILink,
		},
		Status:  o.Status,
		History: nonNil(o.History),
		Items:   make([]orderLineResponse, len(o.Items)),
		Totals: totalsResponse{
			Subtotal:   o.Totals.Subtotal.InexactFloat64(),
			Tax:        o.Totals.Tax.InexactFloat64(),
			Fees:       o.Totals.Fees.InexactFloat64(),
			GrandTotal: o.Totals.GrandTotal.InexactFloat64(),
		},
		EtaMinutes: o.EtaMinutes,
		Rider:      o.Rider,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for i, it := range o.Items {
		addOns := make([]addOnJSON, len(it.AddOns))
		for j, a := range it.AddOns {
			addOns[j] = addOnJSON{Name: a.Name, Price: a.Price.InexactFloat64()}
		}
		resp.Items[i] = orderLineResponse{
			ItemID:   it.ItemID,
			Name:     it.Name,
			Price:    it.Price.InexactFloat64(),
			Quantity: it.Quantity,
			AddOns:   addOns,
			Notes:    it.Notes,
		}
	}
	return resp
}

func toOrderList(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

type placeOrderRequest struct {
	CouponCode    string              `json:"couponCode" validate:"max=32"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=upi cod"`
}

type placeOrderResponse struct {
	Code     string              `json:"code"`
	UPILink  string              `json:"upiLink,omitempty"`
	Message  string              `json:"message"`
	Outcomes []assistant.Outcome `json:"outcomes"`
	Order    *orderResponse      `json:"order,omitempty"`
	Cart     cartResponse        `json:"cart"`
}

// placeOrder checks out the session cart. An unknown coupon fails the
// request before anything is placed. Without a payment method table orders
// pay cash and delivery orders pay by UPI.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.CouponCode != "" {
		if _, ok := h.Coupons.Lookup(req.CouponCode); !ok {
			writeError(w, r, coupon.ErrInvalidCoupon)
			return
		}
	}

	id := sessionID(w, r)
	ctx := r.Context()
	outcomes, sess, err := h.Assistant.Checkout(ctx, id, identity(ctx), assistant.CheckoutRequest{
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	placed := outcomes[len(outcomes)-1]
	if placed.Status != assistant.OutcomeApplied {
		err := placed.Err
		if err == nil {
			err = errors.New(placed.Message)
		}
		writeError(w, r, err)
		return
	}

	resp := placeOrderResponse{
		Code:     placed.OrderCode,
		UPILink:  placed.UPILink,
		Message:  placed.Message,
		Outcomes: outcomes,
		Cart:     h.cartView(id, sess),
	}
	if o, err := h.Orders.GetByCode(ctx, placed.OrderCode); err == nil {
		view := toOrderResponse(o)
		resp.Order = &view
	} else {
		zctx.From(ctx).Warn("Placed order not readable", zap.String("code", placed.OrderCode), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listLive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListLive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) listRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, errors.Wrap(errBadBody, "limit"))
			return
		}
		limit = n
	}
	orders, err := h.Orders.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	orders, err := h.Orders.ListByCustomer(r.Context(), p.CustomerID, p.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) getOrderByCode(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusRequest struct {
	Status order.Status `json:"status" validate:"required"`
	Note   string       `json:"note" validate:"max=200"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r)(h.Orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, req.Note))
}

type markPaymentRequest struct {
	Status    order.PaymentStatus `json:"status" validate:"required"`
	Reference string              `json:"reference" validate:"max=64"`
}

func (h *Handler) markPayment(w http.ResponseWriter, r *http.Request) {
	var req markPaymentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r)(h.Orders.MarkPayment(r.Context(), r.PathValue("id"), req.Status, req.Reference))
}

// setEtaRequest sets or clears the estimate. Any value is accepted.
type setEtaRequest struct {
	Minutes *int `json:"minutes"`
}

func (h *Handler) setEta(w http.ResponseWriter, r *http.Request) {
	var req setEtaRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r)(h.Orders.SetEta(r.Context(), r.PathValue("id"), req.Minutes))
}

type assignRiderRequest struct {
	Rider *order.Rider `json:"rider"`
}

func (h *Handler) assignRider(w http.ResponseWriter, r *http.Request) {
	var req assignRiderRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r)(h.Orders.AssignRider(r.Context(), r.PathValue("id"), req.Rider))
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request) func(*order.Order, error) {
	return func(o *order.Order, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(o))
	}
}
