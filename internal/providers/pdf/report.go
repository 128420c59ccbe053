package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// RunReportData feeds the posting-run PDF.
type RunReportData struct {
	RunID            string
	Trigger          string
	Mode             string
	Status           string
	StartedAt        string
	FinishedAt       string
	SessionsSelected int
	SessionsPosted   int

	Groups  []RunReportGroup
	Skipped []RunReportSkip
}

// RunReportGroup is one invoice row in the report table.
type RunReportGroup struct {
	CustomerName string
	Students     string
	Sessions     int
	Amount       string
	InvoiceID    string
	Outcome      string
}

// RunReportSkip is one excluded session row.
type RunReportSkip struct {
	SessionID   string
	StudentName string
	Reason      string
}

type Provider interface {
	GenerateRunReport(ctx context.Context, data RunReportData) (io.Reader, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateRunReport(ctx context.Context, data RunReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Posting Run Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Run: "+data.RunID, props.Text{Top: 0}),
			text.New("Trigger: "+data.Trigger, props.Text{Top: 5}),
			text.New("Mode: "+data.Mode, props.Text{Top: 10}),
			text.New("Status: "+data.Status, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Started: "+data.StartedAt, props.Text{Top: 0}),
			text.New("Finished: "+data.FinishedAt, props.Text{Top: 5}),
			text.New(fmt.Sprintf("Sessions selected: %d", data.SessionsSelected), props.Text{Top: 10}),
			text.New(fmt.Sprintf("Sessions posted: %d", data.SessionsPosted), props.Text{Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Customer", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Students", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Sessions", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Invoice", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Outcome", props.Text{Style: fontstyle.Bold, Size: 9}),
	)

	for _, g := range data.Groups {
		m.AddRow(12,
			text.NewCol(3, g.CustomerName, props.Text{Size: 9}),
			text.NewCol(3, g.Students, props.Text{Size: 9}),
			text.NewCol(1, fmt.Sprintf("%d", g.Sessions), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, g.Amount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, g.InvoiceID, props.Text{Size: 9}),
			text.NewCol(1, g.Outcome, props.Text{Size: 9}),
		)
	}

	if len(data.Skipped) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Skipped sessions", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Top:   4,
			}),
		)
		m.AddRow(10,
			text.NewCol(3, "Session", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Student", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(6, "Reason", props.Text{Style: fontstyle.Bold, Size: 9}),
		)
		for _, sk := range data.Skipped {
			m.AddRow(12,
				text.NewCol(3, sk.SessionID, props.Text{Size: 9}),
				text.NewCol(3, sk.StudentName, props.Text{Size: 9}),
				text.NewCol(6, sk.Reason, props.Text{Size: 9}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
