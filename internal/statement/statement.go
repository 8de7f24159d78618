// Package statement reads broker HTML statements into raw order tables.
package statement

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/camuig/rf-history/internal/analyzer"
)

var ErrUnknownTemplate = errors.New("unknown statement template")

// Template identifies a statement layout by the issuer caption on its first
// bold line.
type Template string

const (
	TemplateMT4       Template = "RoboMarkets Ltd"
	TemplateRoboForex Template = "RoboForex"
)

const (
	colTicket    = "Ticket"
	colType      = "Type"
	colSize      = "Size"
	colOpenTime  = "Open Time"
	colCloseTime = "Close Time"
	colPrice     = "Price"
	colClose     = "Close"
	colTaxes     = "Taxes"
	colComment   = "Comment"
)

// Layout describes how a template's table maps onto canonical fields.
type Layout struct {
	Mapping analyzer.ColumnMapping
	// ProfitScale converts the profit column to account currency. Both
	// layouts report cent accounts.
	ProfitScale float64
	// BalanceZero lists the columns a merged balance-row cell spills into.
	BalanceZero []string
	// AddTaxes adds a zero Taxes column missing from the layout.
	AddTaxes bool
}

var Templates = map[Template]Layout{
	TemplateMT4: {
		Mapping: analyzer.ColumnMapping{
			"Ticket":     analyzer.FieldOrderID,
			"Open Time":  analyzer.FieldOpenTime,
			"Type":       analyzer.FieldSide,
			"Size":       analyzer.FieldQty,
			"Item":       analyzer.FieldSymbol,
			"Price":      analyzer.FieldOpenPrice,
			"S / L":      analyzer.FieldStopLoss,
			"T / P":      analyzer.FieldTakeProfit,
			"Close Time": analyzer.FieldCloseTime,
			"Close":      analyzer.FieldClosePrice,
			"Commission": analyzer.FieldFee,
			"Taxes":      analyzer.FieldTaxes,
			"Swap":       analyzer.FieldSwap,
			"Profit":     analyzer.FieldProfit,
			"Comment":    analyzer.FieldComment,
		},
		ProfitScale: 0.01,
		BalanceZero: []string{"Size", "Item", "Price", "S / L", "T / P", "Close", "Commission", "Taxes", "Swap"},
	},
	TemplateRoboForex: {
		Mapping: analyzer.ColumnMapping{
			"Ticket":     analyzer.FieldOrderID,
			"Open Time":  analyzer.FieldOpenTime,
			"Type":       analyzer.FieldSide,
			"Size":       analyzer.FieldQty,
			"Item":       analyzer.FieldSymbol,
			"Price":      analyzer.FieldOpenPrice,
			"S / L":      analyzer.FieldStopLoss,
			"T / P":      analyzer.FieldTakeProfit,
			"Close Time": analyzer.FieldCloseTime,
			"Close":      analyzer.FieldClosePrice,
			"Commission": analyzer.FieldFee,
			"Taxes":      analyzer.FieldTaxes,
			"R/O Swap":   analyzer.FieldSwap,
			"Trade P/L":  analyzer.FieldProfit,
			"Comment":    analyzer.FieldComment,
		},
		ProfitScale: 0.01,
		BalanceZero: []string{"Size", "Item", "Price", "S / L", "T / P", "Close", "Commission", "R/O Swap"},
		AddTaxes:    true,
	},
}

// Header is the account identification block of a statement.
type Header struct {
	Template Template `json:"template"`
	Account  string   `json:"account"`
	// Name is only present in MT4 statements.
	Name string `json:"name,omitempty"`
}

// Statement is a parsed statement document.
type Statement struct {
	Header Header
	Table  analyzer.RawTable
}

func (s *Statement) Layout() Layout {
	return Templates[s.Header.Template]
}

// Orders types the statement table, restores grid comments on the raw rows
// and then derives cash flow and balances.
func (s *Statement) Orders(opts analyzer.NormalizeOptions, m analyzer.Markers) ([]analyzer.Order, error) {
	layout := s.Layout()
	if opts.ProfitScale == 0 {
		opts.ProfitScale = layout.ProfitScale
	}
	rows, err := analyzer.ParseTable(s.Table, layout.Mapping, opts)
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", s.Header.Account, err)
	}
	orders, err := analyzer.Derive(RestoreComments(rows, m), opts.CashFlowClassifier())
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", s.Header.Account, err)
	}
	return orders, nil
}

// ReadFile reads a statement from disk.
func ReadFile(path string) (*Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read detects the template and extracts the order table in one pass.
func Read(r io.Reader) (*Statement, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("read statement html: %w", err)
	}
	header, err := detect(doc)
	if err != nil {
		return nil, err
	}
	table, err := parse(doc, header.Template)
	if err != nil {
		return nil, err
	}
	return &Statement{Header: header, Table: table}, nil
}

func Detect(r io.Reader) (Header, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Header{}, fmt.Errorf("read statement html: %w", err)
	}
	return detect(doc)
}

func Parse(r io.Reader, tmpl Template) (analyzer.RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return analyzer.RawTable{}, fmt.Errorf("read statement html: %w", err)
	}
	return parse(doc, tmpl)
}

func detect(doc *goquery.Document) (Header, error) {
	caption := cleanText(doc.Find("b").First().Text())
	tmpl := Template(caption)
	if _, ok := Templates[tmpl]; !ok {
		return Header{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, caption)
	}

	cells := doc.Find("td")
	h := Header{
		Template: tmpl,
		Account:  strings.TrimSpace(strings.TrimPrefix(cleanText(cells.First().Find("b").First().Text()), "Account:")),
	}
	if h.Account == "" {
		return Header{}, errors.New("statement has no account number")
	}
	if tmpl == TemplateMT4 {
		h.Name = strings.TrimSpace(strings.TrimPrefix(cleanText(cells.Eq(1).Find("b").First().Text()), "Name:"))
	}
	return h, nil
}

func parse(doc *goquery.Document, tmpl Template) (analyzer.RawTable, error) {
	layout, ok := Templates[tmpl]
	if !ok {
		return analyzer.RawTable{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, tmpl)
	}

	var (
		table   analyzer.RawTable
		started bool
	)
	doc.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := rowCells(tr)
		if !started {
			if len(cells) > 0 && cells[0] == colTicket {
				table.Columns = headerColumns(cells)
				started = true
			}
			return true
		}
		if len(cells) == 0 || cells[0] == "" {
			return false
		}
		table.Rows = append(table.Rows, cells)
		return true
	})
	if !started {
		return analyzer.RawTable{}, errors.New("statement has no order table")
	}

	return fixup(table, layout), nil
}

// fixup squares rows against the header and repairs balance rows, whose
// comment sits in a merged cell starting at Size.
func fixup(table analyzer.RawTable, layout Layout) analyzer.RawTable {
	if layout.AddTaxes && indexOf(table.Columns, colTaxes) < 0 {
		table.Columns = append(table.Columns, colTaxes)
	}
	if indexOf(table.Columns, colComment) < 0 {
		table.Columns = append(table.Columns, colComment)
	}

	var (
		width      = len(table.Columns)
		typeIdx    = indexOf(table.Columns, colType)
		sizeIdx    = indexOf(table.Columns, colSize)
		openIdx    = indexOf(table.Columns, colOpenTime)
		closeIdx   = indexOf(table.Columns, colCloseTime)
		taxesIdx   = indexOf(table.Columns, colTaxes)
		commentIdx = indexOf(table.Columns, colComment)
		zeroIdx    []int
	)
	for _, name := range layout.BalanceZero {
		if i := indexOf(table.Columns, name); i >= 0 {
			zeroIdx = append(zeroIdx, i)
		}
	}

	rows := make([][]string, 0, len(table.Rows))
	for _, src := range table.Rows {
		row := make([]string, width)
		copy(row, src)
		if layout.AddTaxes && taxesIdx >= len(src) {
			row[taxesIdx] = "0"
		}

		side := ""
		if typeIdx >= 0 {
			side = strings.ToLower(row[typeIdx])
		}
		switch analyzer.Side(side) {
		case analyzer.SideBalance:
			if sizeIdx >= 0 {
				row[commentIdx] = row[sizeIdx]
			}
			for _, i := range zeroIdx {
				row[i] = "0"
			}
			if openIdx >= 0 && closeIdx >= 0 {
				row[closeIdx] = row[openIdx]
			}
		case analyzer.SideBuy, analyzer.SideSell:
			// Trade comments are rebuilt from close times.
			row[commentIdx] = ""
		default:
			// Pending orders that were cancelled never moved the balance.
			continue
		}
		rows = append(rows, row)
	}
	table.Rows = rows
	return table
}

// rowCells returns the trimmed cell texts of tr with colspans expanded.
func rowCells(tr *goquery.Selection) []string {
	var cells []string
	tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
		text := cleanText(td.Text())
		span := 1
		if v, ok := td.Attr("colspan"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
				span = n
			}
		}
		for i := 0; i < span; i++ {
			cells = append(cells, text)
		}
	})
	return cells
}

// headerColumns renames the second Price column, which holds the close price.
func headerColumns(cells []string) []string {
	cols := append([]string(nil), cells...)
	seen := false
	for i, c := range cols {
		if c != colPrice {
			continue
		}
		if seen {
			cols[i] = colClose
			break
		}
		seen = true
	}
	return cols
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
