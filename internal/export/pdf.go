package export

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type pdfColumn struct {
	header string
	title  string
	width  int
	amount bool
}

// pdfLayouts picks the printed columns of each table; widths sum to 12.
var pdfLayouts = map[Table][]pdfColumn{
	TableCreators: {
		{header: "creator", title: "Creator", width: 2},
		{header: "period", title: "Period", width: 1},
		{header: "diamonds", title: "Diamonds", width: 1, amount: true},
		{header: "live_days", title: "Days", width: 1},
		{header: "live_hours", title: "Hours", width: 1},
		{header: "tier_reached", title: "Tier", width: 1},
		{header: "reward_tier1", title: "Tier 1", width: 1, amount: true},
		{header: "reward_tier2", title: "Tier 2", width: 1, amount: true},
		{header: "bonus_amount", title: "Bonus", width: 1, amount: true},
		{header: "total_reward", title: "Total", width: 2, amount: true},
	},
	TableAgents:        groupLayout("agent", "Agent"),
	TableManagers:      groupLayout("group", "Manager"),
	TableAgentEvents:   eventLayout("agent", "Agent"),
	TableManagerEvents: eventLayout("group", "Manager"),
}

func eventLayout(header, title string) []pdfColumn {
	return []pdfColumn{
		{header: header, title: title, width: 3},
		{header: "period", title: "Period", width: 2},
		{header: "creator", title: "Creator", width: 3},
		{header: "tier", title: "Tier", width: 1},
		{header: "amount", title: "Flat bonus", width: 3, amount: true},
	}
}

func groupLayout(header, title string) []pdfColumn {
	return []pdfColumn{
		{header: header, title: title, width: 3},
		{header: "period", title: "Period", width: 1},
		{header: "active_creators", title: "Active", width: 1},
		{header: "diamonds_active", title: "Active diamonds", width: 2, amount: true},
		{header: "commission", title: "Commission", width: 1, amount: true},
		{header: "flat_bonus", title: "Flat bonus", width: 2, amount: true},
		{header: "total_reward", title: "Total", width: 2, amount: true},
	}
}

type PDFRenderer struct {
	printer *message.Printer
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{printer: message.NewPrinter(language.French)}
}

func (p *PDFRenderer) Render(_ context.Context, doc Document) (io.Reader, error) {
	s, err := buildSheet(doc.Tables, doc.Table)
	if err != nil {
		return nil, err
	}
	layout := pdfLayouts[doc.Table]
	index := make(map[string]int, len(s.headers))
	for i, h := range s.headers {
		index[h] = i
	}

	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, doc.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(8,
		text.NewCol(12, doc.Label+" / "+string(doc.Table), props.Text{Size: 10}),
	)

	header := make([]core.Col, 0, len(layout))
	for _, c := range layout {
		header = append(header, text.NewCol(c.width, c.title, props.Text{
			Size:  8,
			Style: fontstyle.Bold,
			Align: columnAlign(c),
		}))
	}
	m.AddRow(8, header...)

	for _, row := range s.rows {
		cols := make([]core.Col, 0, len(layout))
		for _, c := range layout {
			cols = append(cols, text.NewCol(c.width, p.format(c, row[index[c.header]]), props.Text{
				Size:  8,
				Align: columnAlign(c),
			}))
		}
		m.AddRow(6, cols...)
	}

	document, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(document.GetBytes()), nil
}

func columnAlign(c pdfColumn) align.Type {
	if c.amount {
		return align.Right
	}
	return align.Left
}

// format groups the digits of amount columns.
func (p *PDFRenderer) format(c pdfColumn, value string) string {
	if !c.amount {
		return value
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return value
	}
	return p.printer.Sprintf("%d", v)
}
