package order

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultPayeeName = "Cafe"

// Payee identifies the UPI account receiving payments.
type Payee struct {
	VPA  string
	Name string
}

// UPILink builds a upi://pay deep link for amount. The note is omitted when
// empty. Values are query-escaped.
func UPILink(payee Payee, amount decimal.Decimal, note string) string {
	name := payee.Name
	if name == "" {
		name = defaultPayeeName
	}

	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(url.QueryEscape(payee.VPA))
	b.WriteString("&pn=")
	b.WriteString(url.QueryEscape(name))
	b.WriteString("&am=")
	b.WriteString(amount.StringFixed(2))
	b.WriteString("&cu=INR")
	if note != "" {
		b.WriteString("&tn=")
		b.WriteString(url.QueryEscape(note))
	}
	return b.String()
}
