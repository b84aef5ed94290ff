package handler

import (
	"net/http"
	"time"

	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

type contactResponse struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Community string `json:"community,omitempty"`
	Tower     string `json:"tower,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Address   string `json:"address,omitempty"`
	Landmark  string `json:"landmark,omitempty"`
}

func toContactResponse(c customer.Contact) contactResponse {
	return contactResponse(c)
}

type customerResponse struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	Name        string        `json:"name,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	Role        customer.Role `json:"role,omitempty"`
	Community   string        `json:"community,omitempty"`
	Tower       string        `json:"tower,omitempty"`
	Unit        string        `json:"unit,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastSeenAt  time.Time     `json:"lastSeenAt"`
	TotalOrders int           `json:"totalOrders"`
	TotalSpend  float64       `json:"totalSpend"`
	LastOrderAt *time.Time    `json:"lastOrderAt,omitempty"`
}

func toCustomerResponse(c *customer.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		Role:        c.Role,
		Community:   c.Community,
		Tower:       c.Tower,
		Unit:        c.Unit,
		CreatedAt:   c.CreatedAt,
		LastSeenAt:  c.LastSeenAt,
		TotalOrders: c.TotalOrders,
		TotalSpend:  c.TotalSpend.InexactFloat64(),
		LastOrderAt: c.LastOrderAt,
	}
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Customers.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]customerResponse, len(customers))
	for i := range customers {
		resp[i] = toCustomerResponse(&customers[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	c, err := h.Customers.Get(r.Context(), auth.PrincipalFrom(r.Context()).CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req contactInput
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Customers.UpdateProfile(r.Context(), auth.PrincipalFrom(r.Context()).CustomerID, req.contact())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}
