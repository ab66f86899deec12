package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	data, err := NewRenderer().RenderPDF(Input{
		Number:        "INV-1",
		IssueDate:     "Mar, 15 2026",
		ServicePeriod: "Mar, 15 2026 - Apr, 01 2026",
		Issuer:        Party{Name: "Allotment Billing"},
		BillTo:        Party{Name: "org-1"},
		Lines: []Line{{
			Description: "DEVICE d1",
			Period:      "Mar, 15 2026 - Apr, 01 2026",
			Quantity:    10,
			UnitPrice:   "3.00",
			Amount:      "15.00",
		}},
		Total: "15.00 USD",
		Paid:  true,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderPDFWithoutLines(t *testing.T) {
	_, err := NewRenderer().RenderPDF(Input{Number: "INV-2"})
	assert.Error(t, err)
}
