package assistant

import (
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ActionType names an agent-proposed mutation.
type ActionType string

const (
	ActionAddToCart    ActionType = "add_to_cart"
	ActionApplyCoupon  ActionType = "apply_coupon"
	ActionPlaceOrder   ActionType = "place_order"
	ActionCheckPayment ActionType = "check_payment"
)

func (t ActionType) known() bool {
	switch t {
	case ActionAddToCart, ActionApplyCoupon, ActionPlaceOrder, ActionCheckPayment:
		return true
	}
	return false
}

// Action is one mutation proposed by the language model. Fields beyond Type
// are only meaningful for the matching action type.
type Action struct {
	Type       ActionType `json:"type"`
	ItemID     string     `json:"itemId,omitempty"`
	Quantity   int        `json:"quantity,omitempty"`
	AddOnIDs   []string   `json:"addOnIds,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CouponCode string     `json:"couponCode,omitempty"`
}

// Suggestion is a menu item the model recommends.
type Suggestion struct {
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// Reply is the schema-checked output of the language model.
type Reply struct {
	Reply       string
	Actions     []Action
	Suggestions []Suggestion
}

// ParseReply decodes a model response. Anything that is not a JSON object is
// returned as plain reply text with no actions. Inside an object, malformed
// or unknown actions and suggestions are dropped one by one.
func ParseReply(raw string) Reply {
	text := stripFence(raw)
	fallback := Reply{Reply: strings.TrimSpace(raw)}

	if !jx.Valid([]byte(text)) {
		return fallback
	}
	d := jx.DecodeStr(text)
	if d.Next() != jx.Object {
		return fallback
	}

	var out Reply
	hasReply := false
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "reply":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			out.Reply = s
			hasReply = true
			return nil
		case "actions":
			return decodeList(d, func(raw jx.Raw) {
				if a, err := decodeAction(raw); err == nil && a.Type.known() {
					out.Actions = append(out.Actions, a)
				}
			})
		case "suggestions":
			return decodeList(d, func(raw jx.Raw) {
				if s, err := decodeSuggestion(raw); err == nil && s.ItemID != "" {
					out.Suggestions = append(out.Suggestions, s)
				}
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return fallback
	}
	if !hasReply {
		out.Reply = fallback.Reply
	}
	return out
}

// decodeList calls fn with each raw element of an array. Non-array values
// are skipped.
func decodeList(d *jx.Decoder, fn func(raw jx.Raw)) error {
	if d.Next() != jx.Array {
		return d.Skip()
	}
	return d.Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		fn(raw)
		return nil
	})
}

var errNotObject = errors.New("not an object")

func decodeAction(raw jx.Raw) (Action, error) {
	var a Action
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return a, errNotObject
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			s, err := optString(d)
			a.Type = ActionType(s)
			return err
		case "itemId":
			s, err := optString(d)
			a.ItemID = s
			return err
		case "notes":
			s, err := optString(d)
			a.Notes = s
			return err
		case "couponCode":
			s, err := optString(d)
			a.CouponCode = s
			return err
		case "quantity":
			if d.Next() != jx.Number {
				return d.Skip()
			}
			f, err := d.Float64()
			if err != nil {
				return err
			}
			if f >= 1 && f <= math.MaxInt32 {
				a.Quantity = int(f)
			}
			return nil
		case "addOnIds":
			if d.Next() != jx.Array {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				s, err := optString(d)
				if s != "" {
					a.AddOnIDs = append(a.AddOnIDs, s)
				}
				return err
			})
		default:
			return d.Skip()
		}
	})
	return a, err
}

func decodeSuggestion(raw jx.Raw) (Suggestion, error) {
	var s Suggestion
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return s, errNotObject
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			s.ItemID, err = optString(d)
		case "reason":
			s.Reason, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

// optString reads a string value, skipping any other type.
func optString(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", d.Skip()
	}
	return d.Str()
}

// stripFence removes a surrounding markdown code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
