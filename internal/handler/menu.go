package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/menu"
)

type addOnBody struct {
	ID    string          `json:"id" validate:"max=64"`
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

type menuItemResponse struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Price          float64     `json:"price"`
	EffectivePrice float64     `json:"effectivePrice"`
	Category       string      `json:"category"`
	Tags           []string    `json:"tags"`
	AddOns         []addOnJSON `json:"addOns"`
	Available      bool        `json:"available"`
	Image          string      `json:"image,omitempty"`
	DealPrice      *float64    `json:"dealPrice,omitempty"`
	DealExpiresAt  *time.Time  `json:"dealExpiresAt,omitempty"`
	ComboItems     []string    `json:"comboItems,omitempty"`
}

type addOnJSON struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func toMenuItemResponse(it menu.Item, now time.Time) menuItemResponse {
	resp := menuItemResponse{
		ID:             it.ID,
		Name:           it.Name,
		Description:    it.Description,
		Price:          it.Price.InexactFloat64(),
		EffectivePrice: it.EffectivePrice(now).InexactFloat64(),
		Category:       it.Category,
		Tags:           nonNil(it.Tags),
		AddOns:         make([]addOnJSON, len(it.AddOns)),
		Available:      it.Available,
		Image:          it.Image,
		DealExpiresAt:  it.DealExpiresAt,
		ComboItems:     it.ComboItems,
	}
	for i, a := range it.AddOns {
		resp.AddOns[i] = addOnJSON{ID: a.ID, Name: a.Name, Price: a.Price.InexactFloat64()}
	}
	if it.DealPrice.Valid {
		v := it.DealPrice.Decimal.InexactFloat64()
		resp.DealPrice = &v
	}
	return resp
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.Menu.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	onlyAvailable := r.URL.Query().Get("available") == "true"

	now := time.Now()
	resp := make([]menuItemResponse, 0, len(items))
	for _, it := range items {
		if category != "" && !strings.EqualFold(it.Category, category) {
			continue
		}
		if onlyAvailable && !it.Available {
			continue
		}
		resp = append(resp, toMenuItemResponse(it, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getMenuItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Menu.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(*it, time.Now()))
}

type createMenuItemRequest struct {
	ID            string           `json:"id" validate:"omitempty,max=64"`
	Name          string           `json:"name" validate:"required,max=120"`
	Description   string           `json:"description" validate:"max=1000"`
	Price         decimal.Decimal  `json:"price"`
	Category      string           `json:"category" validate:"required,max=60"`
	Tags          []string         `json:"tags"`
	AddOns        []addOnBody      `json:"addOns" validate:"dive"`
	Available     *bool            `json:"available"`
	Image         string           `json:"image" validate:"omitempty,url"`
	DealPrice     *decimal.Decimal `json:"dealPrice"`
	DealExpiresAt *time.Time       `json:"dealExpiresAt"`
	ComboItems    []string         `json:"comboItems"`
}

func (h *Handler) createMenuItem(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item := menu.Item{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Category:      req.Category,
		Tags:          req.Tags,
		AddOns:        toAddOns(req.AddOns),
		Available:     req.Available == nil || *req.Available,
		Image:         req.Image,
		DealExpiresAt: req.DealExpiresAt,
		ComboItems:    req.ComboItems,
	}
	if req.DealPrice != nil {
		item.DealPrice = decimal.NewNullDecimal(*req.DealPrice)
	}

	created, err := h.Menu.Create(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItemResponse(*created, time.Now()))
}

type updateMenuItemRequest struct {
	Name          *string          `json:"name" validate:"omitempty,max=120"`
	Description   *string          `json:"description" validate:"omitempty,max=1000"`
	Price         *decimal.Decimal `json:"price"`
	Category      *string          `json:"category" validate:"omitempty,max=60"`
	Tags          *[]string        `json:"tags"`
	AddOns        *[]addOnBody     `json:"addOns" validate:"omitempty,dive"`
	Available     *bool            `json:"available"`
	Image         *string          `json:"image" validate:"omitempty,url"`
	DealPrice     *decimal.Decimal `json:"dealPrice"`
	DealExpiresAt *time.Time       `json:"dealExpiresAt"`
	ComboItems    *[]string        `json:"comboItems"`
}

func (h *Handler) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req updateMenuItemRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := menu.Patch{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Category:      req.Category,
		Tags:          req.Tags,
		Available:     req.Available,
		Image:         req.Image,
		DealPrice:     req.DealPrice,
		DealExpiresAt: req.DealExpiresAt,
		ComboItems:    req.ComboItems,
	}
	if req.AddOns != nil {
		addOns := toAddOns(*req.AddOns)
		p.AddOns = &addOns
	}

	updated, err := h.Menu.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(*updated, time.Now()))
}

func (h *Handler) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Menu.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := h.Menu.ToggleAvailability(r.Context(), id, *req.Available); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Menu.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(*it, time.Now()))
}

func toAddOns(in []addOnBody) []menu.AddOn {
	out := make([]menu.AddOn, len(in))
	for i, a := range in {
		out[i] = menu.AddOn{ID: a.ID, Name: a.Name, Price: a.Price}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
