// Package render lays out invoice PDFs.
package render

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type Party struct {
	Name    string
	Address string
	Email   string
}

type Line struct {
	Description string
	Period      string
	Quantity    int64
	UnitPrice   string
	Amount      string
}

// Input is an invoice with every amount already formatted.
type Input struct {
	Title         string
	Number        string
	IssueDate     string
	ServicePeriod string
	Transaction   string

	Issuer  Party
	BillTo  Party
	Lines   []Line
	Total   string
	Paid    bool
	Comment string
}

type Renderer interface {
	RenderPDF(input Input) ([]byte, error)
}

type pdfRenderer struct{}

func NewRenderer() Renderer {
	return &pdfRenderer{}
}

func (r *pdfRenderer) RenderPDF(input Input) ([]byte, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("invoice %s has no lines", input.Number)
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := input.Title
	if title == "" {
		title = "Invoice"
	}
	m.AddRow(12,
		text.NewCol(12, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+input.Number, props.Text{Top: 0}),
			text.New("Date of issue: "+input.IssueDate, props.Text{Top: 4}),
			text.New("Service period: "+input.ServicePeriod, props.Text{Top: 8}),
			text.New("Transaction: "+input.Transaction, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(input.Issuer.Name, props.Text{Style: fontstyle.Bold}),
			text.New(input.Issuer.Address, props.Text{Top: 5}),
			text.New(input.Issuer.Email, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(input.BillTo.Name, props.Text{Top: 5}),
			text.New(input.BillTo.Address, props.Text{Top: 9}),
			text.New(input.BillTo.Email, props.Text{Top: 15}),
		),
	)

	status := "Amount due " + input.Total
	if input.Paid {
		status = input.Total + " paid"
	}
	m.AddRow(15,
		text.NewCol(12, status, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Period", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range input.Lines {
		m.AddRow(12,
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(3, line.Period, props.Text{Size: 8}),
			text.NewCol(1, fmt.Sprintf("%d", line.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, line.UnitPrice, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, input.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if input.Comment != "" {
		m.AddRow(15, text.NewCol(12, input.Comment, props.Text{Size: 8, Top: 5}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
