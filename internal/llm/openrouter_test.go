package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens      int `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id": "gen-1",
		"choices": []any{
			map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func testState() assistant.Context {
	c := cart.New(pricing.ModeDelivery)
	c.Items = []cart.Line{{ItemID: "chai", Name: "Chai", Price: decimal.NewFromInt(30), Quantity: 2}}
	return assistant.Context{
		Cart:     c,
		Subtotal: decimal.NewFromInt(60),
		Menu: []menu.Item{{
			ID: "chai", Name: "Chai", Price: decimal.NewFromInt(30), Category: "Beverages", Available: true,
			AddOns: []menu.AddOn{{ID: "ginger", Name: "Ginger", Price: decimal.NewFromInt(10)}},
		}},
		Coupons: []coupon.Rule{{Code: "WELCOME10", Kind: coupon.KindPercent, Value: decimal.NewFromInt(10)}},
	}
}

func TestClient_Generate(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "Yum Yard Cafe", r.Header.Get("X-Title"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"reply":"Added two chai.","actions":[{"type":"add_to_cart","itemId":"chai","quantity":2}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", APIKey: "key-1"}, nil)
	reply, err := c.Generate(context.Background(), []assistant.Message{
		{Role: assistant.RoleUser, Content: "two chai please"},
	}, testState())
	require.NoError(t, err)

	assert.Equal(t, "Added two chai.", reply.Reply)
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, assistant.ActionAddToCart, reply.Actions[0].Type)
	assert.Equal(t, 2, reply.Actions[0].Quantity)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, maxTokens, got.MaxTokens)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 5)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, `"id":"chai"`)
	assert.Contains(t, got.Messages[1].Content, `"price":30`)
	assert.Contains(t, got.Messages[2].Content, `"code":"WELCOME10"`)
	assert.Contains(t, got.Messages[3].Content, `"mode":"delivery"`)
	assert.Contains(t, got.Messages[3].Content, `"subtotal":60`)
	assert.Equal(t, "user", got.Messages[4].Role)
	assert.Equal(t, "two chai please", got.Messages[4].Content)
}

func TestClient_Generate_PlainTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, completion("We open at 8am."))
	}))
	defer srv.Close()

	reply, err := New(Config{BaseURL: srv.URL, APIKey: "k"}, nil).Generate(context.Background(), nil, assistant.Context{})
	require.NoError(t, err)
	assert.Equal(t, "We open at 8am.", reply.Reply)
	assert.Empty(t, reply.Actions)
}

func TestClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "upstream error", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}, nil).Generate(context.Background(), nil, assistant.Context{})
			require.Error(t, err)
		})
	}
}

func TestClient_Generate_OversizedBody(t *testing.T) {
	body := completion(strings.Repeat("a", maxBody))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}, nil).Generate(context.Background(), nil, assistant.Context{})
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_Generate_NotConfigured(t *testing.T) {
	_, err := New(Config{}, nil).Generate(context.Background(), nil, assistant.Context{})
	require.ErrorIs(t, err, ErrNotConfigured)
}
