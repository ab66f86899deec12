package format

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	id := ulid.MustParse("01HZY3K8W1Q2N3M4P5R6S7T8V9")

	number, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, id)
	require.NoError(t, err)
	assert.Equal(t, "INV-20260315-01HZY3K8W1Q2N3M4P5R6S7T8V9", number)

	_, err = FormatInvoiceNumber("INV-{SEQ}", issued, id)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("", issued, id)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "invoices/org-1/inv-20260315-01hzy.pdf", ObjectKey("Org 1", "INV-20260315-01HZY"))
	assert.Equal(t, "invoices/acme-inc/inv-1.pdf", ObjectKey("Acme, Inc.", "INV 1"))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "15.00 USD", Money(decimal.NewFromInt(15), "USD"))
	assert.Equal(t, "8.21917808 USD", Money(decimal.RequireFromString("8.21917808"), "USD"))
	assert.Equal(t, "0.50", Money(decimal.RequireFromString("0.5"), ""))
}
