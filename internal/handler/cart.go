package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
)

// SessionHeader carries the visitor's session id in both directions.
const SessionHeader = "X-Session-ID"

const maxCartUnits = 50

// sessionID returns the caller's session id, issuing a new one when the
// header is missing or malformed. The id is echoed on the response.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set(SessionHeader, id)
	return id
}

type cartLineResponse struct {
	ItemID    string      `json:"itemId"`
	Name      string      `json:"name"`
	Price     float64     `json:"price"`
	Quantity  int         `json:"quantity"`
	AddOns    []addOnJSON `json:"addOns"`
	Notes     string      `json:"notes,omitempty"`
	LineTotal float64     `json:"lineTotal"`
}

type totalsResponse struct {
	Subtotal   float64 `json:"subtotal"`
	Tax        float64 `json:"tax"`
	Fees       float64 `json:"fees"`
	Discount   float64 `json:"discount"`
	GrandTotal float64 `json:"grandTotal"`
}

type cartResponse struct {
	SessionID     string             `json:"sessionId"`
	Mode          pricing.Mode       `json:"mode"`
	ServiceType   string             `json:"serviceType,omitempty"`
	TableID       string             `json:"tableId,omitempty"`
	Contact       contactResponse    `json:"contact"`
	Items         []cartLineResponse `json:"items"`
	Totals        totalsResponse     `json:"totals"`
	AppliedCoupon string             `json:"appliedCoupon,omitempty"`
	LastOrder     *lastOrderResponse `json:"lastOrder,omitempty"`
}

type lastOrderResponse struct {
	Code          string              `json:"code"`
	Mode          pricing.Mode        `json:"mode"`
	Total         float64             `json:"total"`
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
	CouponCode    string              `json:"couponCode,omitempty"`
	PlacedAt      time.Time           `json:"placedAt"`
}

// cartView renders sess. The applied coupon's discount is shown in the
// totals without being stored.
func (h *Handler) cartView(id string, sess *session.Session) cartResponse {
	c := sess.Cart
	totals := c.Totals()
	discount := decimal.Zero
	if sess.AppliedCoupon != "" {
		if d, err := h.Coupons.Resolve(sess.AppliedCoupon, totals.Subtotal, totals.Fees); err == nil {
			discount = d.Amount
		}
	}

	resp := cartResponse{
		SessionID:     id,
		Mode:          c.Mode,
		ServiceType:   c.ServiceType,
		TableID:       c.TableID,
		Contact:       toContactResponse(c.Contact),
		Items:         make([]cartLineResponse, len(c.Items)),
		AppliedCoupon: sess.AppliedCoupon,
		Totals: totalsResponse{
			Subtotal:   totals.Subtotal.InexactFloat64(),
			Tax:        totals.Tax.InexactFloat64(),
			Fees:       totals.Fees.InexactFloat64(),
			Discount:   discount.InexactFloat64(),
			GrandTotal: totals.Discounted(discount).InexactFloat64(),
		},
	}
	for i, l := range c.Items {
		unit := l.Price
		addOns := make([]addOnJSON, len(l.AddOns))
		for j, a := range l.AddOns {
			addOns[j] = addOnJSON{Name: a.Name, Price: a.Price.InexactFloat64()}
			unit = unit.Add(a.Price)
		}
		resp.Items[i] = cartLineResponse{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Price:     l.Price.InexactFloat64(),
			Quantity:  l.Quantity,
			AddOns:    addOns,
			Notes:     l.Notes,
			LineTotal: unit.Mul(decimal.NewFromInt(int64(l.Quantity))).InexactFloat64(),
		}
	}
	if lo := sess.LastOrder; lo != nil {
		resp.LastOrder = &lastOrderResponse{
			Code:          lo.Code,
			Mode:          lo.Mode,
			Total:         lo.Total.InexactFloat64(),
			PaymentStatus: lo.Status,
			CouponCode:    lo.CouponCode,
			PlacedAt:      lo.PlacedAt,
		}
	}
	return resp
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	sess, err := session.Load(r.Context(), h.Sessions, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(id, sess))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(sess *session.Session) error {
		sess.Cart.Clear()
		sess.AppliedCoupon = ""
		return nil
	})
}

type addCartItemRequest struct {
	ItemID   string   `json:"itemId" validate:"required"`
	Quantity int      `json:"quantity" validate:"omitempty,min=1,max=50"`
	AddOnIDs []string `json:"addOnIds"`
	Notes    string   `json:"notes" validate:"max=200"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.Menu.Get(r.Context(), req.ItemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	qty := min(max(req.Quantity, 1), maxCartUnits)

	h.mutateCart(w, r, func(sess *session.Session) error {
		now := time.Now()
		for range qty {
			if err := sess.Cart.Add(*item, req.AddOnIDs, strings.TrimSpace(req.Notes), now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	h.mutateCart(w, r, func(sess *session.Session) error {
		return sess.Cart.Remove(itemID)
	})
}

type cartContactRequest struct {
	Mode        pricing.Mode `json:"mode" validate:"required,oneof=table delivery"`
	ServiceType string       `json:"serviceType" validate:"omitempty,oneof=table takeaway"`
	TableID     string       `json:"tableId" validate:"max=32"`
	Contact     contactInput `json:"contact"`
}

func (h *Handler) setCartContact(w http.ResponseWriter, r *http.Request) {
	var req cartContactRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ServiceType != "" && req.Mode != pricing.ModeTable {
		writeError(w, r, order.ErrServiceTypeMode)
		return
	}
	h.mutateCart(w, r, func(sess *session.Session) error {
		c := sess.Cart
		c.Mode = req.Mode
		c.ServiceType = req.ServiceType
		c.TableID = strings.TrimSpace(req.TableID)
		c.Contact = req.Contact.contact()
		return nil
	})
}

// mutateCart loads the caller's session, applies fn and saves the result.
func (h *Handler) mutateCart(w http.ResponseWriter, r *http.Request, fn func(sess *session.Session) error) {
	id := sessionID(w, r)
	ctx := r.Context()
	sess, err := session.Load(ctx, h.Sessions, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Cart == nil {
		sess.Cart = cart.New(pricing.ModeTable)
	}
	if err := fn(sess); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Sessions.Set(ctx, id, sess); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(id, sess))
}
