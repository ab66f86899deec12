package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}{DD}-{ULID}"

// FormatInvoiceNumber fills template with the issue date and id.
func FormatInvoiceNumber(template string, issuedAt time.Time, id ulid.ULID) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{ULID}", id.String())

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// ObjectKey is where the PDF of invoice number is stored for owner.
func ObjectKey(owner, number string) string {
	return fmt.Sprintf("invoices/%s/%s.pdf", slug.Make(owner), slug.Make(number))
}

// Money renders amount with two decimals, or all eight when the amount
// has sub-cent digits.
func Money(amount decimal.Decimal, currency string) string {
	places := int32(2)
	if !amount.Equal(amount.Round(2)) {
		places = 8
	}
	return strings.TrimSpace(amount.StringFixed(places) + " " + currency)
}
