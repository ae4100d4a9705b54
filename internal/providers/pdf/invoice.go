package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	labelColor = &props.Color{Red: 100, Green: 116, Blue: 139}
	valueColor = &props.Color{Red: 15, Green: 23, Blue: 42}
)

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, orPlaceholder(doc.TenantName), props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Color: valueColor,
		}),
	)
	m.AddRow(2, line.NewCol(12))

	m.AddRow(14,
		text.NewCol(12, "Invoice", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
			Top:   5,
		}),
	)

	currency := doc.Currency
	if currency == "" {
		currency = "USD"
	}
	dueDate := placeholder
	if doc.DueDate != nil {
		dueDate = doc.DueDate.Format("1/2/2006")
	}

	m.AddRows(
		field("Invoice #", orPlaceholder(doc.InvoiceNumber)),
		field("Client", orPlaceholder(doc.ClientName)),
		field("Email", orPlaceholder(doc.ClientEmail)),
		field("Amount", FormatAmount(currency, doc.Amount)),
		field("Due date", dueDate),
		field("Status", orPlaceholder(doc.Status)),
	)

	if len(doc.LineItems) > 0 {
		m.AddRow(10,
			text.NewCol(12, "Line items", props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Color: labelColor,
				Top:   4,
			}),
		)
		for _, item := range doc.LineItems {
			itemCurrency := item.Currency
			if itemCurrency == "" {
				itemCurrency = currency
			}
			m.AddRow(7,
				text.NewCol(8, item.Description, props.Text{Size: 10}),
				text.NewCol(4, FormatAmount(itemCurrency, item.Amount), props.Text{Size: 10, Align: align.Right}),
			)
			m.AddRow(1, line.NewCol(12, props.Line{Color: &props.Color{Red: 226, Green: 232, Blue: 240}}))
		}
	}

	if notes := strings.TrimSpace(doc.Notes); notes != "" {
		m.AddRow(10,
			text.NewCol(12, "Notes", props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Color: labelColor,
				Top:   4,
			}),
		)
		m.AddRow(12, text.NewCol(12, notes, props.Text{Size: 10}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return out.GetBytes(), nil
}

func field(label, value string) core.Row {
	return row.New(7).Add(
		text.NewCol(3, label, props.Text{Size: 11, Color: labelColor}),
		text.NewCol(9, value, props.Text{Size: 11, Color: valueColor}),
	)
}

