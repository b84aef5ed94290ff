package handler

import (
	"net/http"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
)

type chatMessage struct {
	Role    assistant.Role `json:"role" validate:"required,oneof=user assistant"`
	Content string         `json:"content" validate:"required,max=4000"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}

type chatResponse struct {
	Reply       string                 `json:"reply"`
	Suggestions []assistant.Suggestion `json:"suggestions"`
	Outcomes    []assistant.Outcome    `json:"outcomes"`
	Cart        cartResponse           `json:"cart"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	history := make([]assistant.Message, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = assistant.Message{Role: m.Role, Content: m.Content}
	}

	id := sessionID(w, r)
	ctx := r.Context()
	res, err := h.Assistant.Chat(ctx, id, identity(ctx), history)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:       res.Reply,
		Suggestions: nonNil(res.Suggestions),
		Outcomes:    nonNil(res.Outcomes),
		Cart:        h.cartView(id, res.Session),
	})
}
