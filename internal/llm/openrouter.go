// Package llm talks to an OpenAI-compatible chat completion API on behalf of
// the cafe assistant.
package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"

	defaultTimeout = 20 * time.Second
	temperature    = 0.6
	maxTokens      = 400
	maxErrorBody   = 4 << 10
	maxBody        = 1 << 20
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("assistant api key not configured")
	// ErrResponseTooLarge is returned for completions over 1 MiB.
	ErrResponseTooLarge = errors.New("completion response too large")
)

// Config configures a Client.
type Config struct {
	BaseURL string        `json:"baseURL" yaml:"baseURL"`
	APIKey  string        `json:"apiKey" yaml:"apiKey"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Referer and Title identify the app to OpenRouter.
	Referer string `json:"referer" yaml:"referer"`
	Title   string `json:"title" yaml:"title"`
}

var _ assistant.Generator = (*Client)(nil)

// Client is an assistant.Generator backed by a chat completion endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. Outgoing requests are traced through otelhttp.
func New(cfg Config, tp trace.TracerProvider) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Title == "" {
		cfg.Title = "Yum Yard Cafe"
	}

	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// Generate sends the conversation with the menu, coupon catalog and visitor
// context as system messages and parses the model's answer.
func (c *Client) Generate(ctx context.Context, history []assistant.Message, state assistant.Context) (assistant.Reply, error) {
	if c.cfg.APIKey == "" {
		return assistant.Reply{}, ErrNotConfigured
	}

	body := encodeRequest(c.cfg.Model, buildMessages(history, state))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return assistant.Reply{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	req.Header.Set("X-Title", c.cfg.Title)

	resp, err := c.http.Do(req)
	if err != nil {
		return assistant.Reply{}, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return assistant.Reply{}, errors.Errorf("completion failed: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return assistant.Reply{}, errors.Wrap(err, "read response")
	}
	if len(raw) > maxBody {
		return assistant.Reply{}, ErrResponseTooLarge
	}
	content, err := decodeContent(raw)
	if err != nil {
		return assistant.Reply{}, err
	}
	return assistant.ParseReply(content), nil
}

// decodeContent extracts choices[0].message.content.
func decodeContent(raw []byte) (string, error) {
	var (
		content string
		found   bool
	)
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "choices" || found {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			if found {
				return d.Skip()
			}
			found = true
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "message" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "content" || d.Next() != jx.String {
						return d.Skip()
					}
					s, err := d.Str()
					content = s
					return err
				})
			})
		})
	})
	if err != nil {
		return "", errors.Wrap(err, "decode completion")
	}
	if content == "" {
		return "", errors.New("completion has no content")
	}
	return content, nil
}

type chatMessage struct {
	role    string
	content string
}

func encodeRequest(model string, messages []chatMessage) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("model", func(e *jx.Encoder) { e.Str(model) })
		e.Field("messages", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, m := range messages {
					e.Obj(func(e *jx.Encoder) {
						e.Field("role", func(e *jx.Encoder) { e.Str(m.role) })
						e.Field("content", func(e *jx.Encoder) { e.Str(m.content) })
					})
				}
			})
		})
		e.Field("temperature", func(e *jx.Encoder) { e.Float64(temperature) })
		e.Field("max_tokens", func(e *jx.Encoder) { e.Int(maxTokens) })
		e.Field("response_format", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("type", func(e *jx.Encoder) { e.Str("json_object") })
			})
		})
	})
	return e.Bytes()
}

func buildMessages(history []assistant.Message, state assistant.Context) []chatMessage {
	out := []chatMessage{
		{role: "system", content: systemPrompt},
		{role: "system", content: "Menu catalog (id/name/price/addOns): " + encodeMenu(state)},
		{role: "system", content: "Coupon catalog: " + encodeCoupons(state)},
		{role: "system", content: "Context: " + encodeContext(state)},
	}
	for _, m := range history {
		out = append(out, chatMessage{role: string(m.Role), content: m.Content})
	}
	return out
}

var systemPrompt = strings.Join([]string{
	"You are Yum Yard AI, a friendly order concierge.",
	"Goals: suggest menu items, remember delivery/table context, and propose cart actions.",
	"Always respond as JSON: { reply: string, actions?: [{ type: 'add_to_cart'|'place_order'|'apply_coupon'|'check_payment', itemId?: string, quantity?: number, addOnIds?: string[], notes?: string, couponCode?: string }], suggestions?: [{ itemId: string, reason: string }] }",
	"Use lastOrder context to recall what the guest had previously and offer thoughtful repeats or combos.",
	"Supported actions:",
	"- add_to_cart: include itemId from menu, optional quantity/addOnIds/notes.",
	"- place_order: call this only when cart is valid; use current cart/mode/contact; do not invent items.",
	"- apply_coupon: propose couponCode only from the provided coupon catalog.",
	"- check_payment: use lastOrder context; if none, say so.",
	"Never invent item ids or coupon codes.",
	"Respect mode: 'table' can skip address; 'delivery' needs phone and address.",
	"Keep the reply concise and acknowledge any cart or checkout changes you propose.",
}, " ")

func encodeMenu(state assistant.Context) string {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, it := range state.Menu {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
				e.Field("description", func(e *jx.Encoder) { e.Str(it.Description) })
				e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(it.Price.String())) })
				e.Field("category", func(e *jx.Encoder) { e.Str(it.Category) })
				if len(it.AddOns) == 0 {
					return
				}
				e.Field("addOns", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, a := range it.AddOns {
							e.Obj(func(e *jx.Encoder) {
								e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
								e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
								e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(a.Price.String())) })
							})
						}
					})
				})
			})
		}
	})
	return e.String()
}

func encodeCoupons(state assistant.Context) string {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, r := range state.Coupons {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Str(r.Code) })
				e.Field("kind", func(e *jx.Encoder) { e.Str(string(r.Kind)) })
				e.Field("value", func(e *jx.Encoder) { e.Num(jx.Num(r.Value.String())) })
				e.Field("note", func(e *jx.Encoder) { e.Str(r.Description) })
			})
		}
	})
	return e.String()
}

func encodeContext(state assistant.Context) string {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if c := state.Cart; c != nil {
			e.Field("mode", func(e *jx.Encoder) { e.Str(string(c.Mode)) })
			if c.TableID != "" {
				e.Field("tableId", func(e *jx.Encoder) { e.Str(c.TableID) })
			}
			e.Field("contact", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					optField(e, "name", c.Contact.Name)
					optField(e, "phone", c.Contact.Phone)
					optField(e, "email", c.Contact.Email)
					optField(e, "community", c.Contact.Community)
					optField(e, "tower", c.Contact.Tower)
					optField(e, "unit", c.Contact.Unit)
					optField(e, "address", c.Contact.Address)
				})
			})
			e.Field("cart", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range c.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("itemId", func(e *jx.Encoder) { e.Str(l.ItemID) })
							e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
							optField(e, "notes", l.Notes)
						})
					}
				})
			})
		}
		e.Field("subtotal", func(e *jx.Encoder) { e.Num(jx.Num(state.Subtotal.String())) })
		optField(e, "appliedCoupon", state.AppliedCoupon)
		if lo := state.LastOrder; lo != nil {
			e.Field("lastOrder", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(lo.Code) })
					e.Field("mode", func(e *jx.Encoder) { e.Str(string(lo.Mode)) })
					e.Field("total", func(e *jx.Encoder) { e.Num(jx.Num(lo.Total.String())) })
					e.Field("status", func(e *jx.Encoder) { e.Str(string(lo.Status)) })
					optField(e, "couponCode", lo.CouponCode)
					e.Field("items", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, it := range lo.Items {
								e.Obj(func(e *jx.Encoder) {
									e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
									e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
								})
							}
						})
					})
				})
			})
		}
	})
	return e.String()
}

func optField(e *jx.Encoder, name, value string) {
	if value == "" {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(value) })
}
