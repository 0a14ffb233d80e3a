package testkit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/table"
	"goprofile/internal"
	"goprofile/ports"
)

// TransactionColumns is the header of the synthetic transactions dataset
var TransactionColumns = []string{
	"transaction_id", "timestamp", "customer_id", "product_id",
	"category", "quantity", "unit_price", "total_amount",
	"payment_method", "store_location", "discount_applied",
	"customer_age", "customer_segment", "rating", "returned",
}

var (
	categories     = []string{"Electronics", "Clothing", "Food", "Home", "Sports", "Books", "Toys", "Beauty"}
	paymentMethods = []string{"Credit Card", "Debit Card", "Cash", "Mobile Payment", "Gift Card"}
	locations      = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia"}
	segments       = []string{"Regular", "Silver", "Gold", "Platinum"}
	discounts      = []float64{0, 0, 0, 0.1, 0.15, 0.2, 0.25} // most transactions have none
)

// Presets maps dataset size names to row counts
var Presets = map[string]int{
	"small":  10000,
	"medium": 100000,
	"large":  1000000,
	"xlarge": 5000000,
}

// TransactionGeneratorConfig configures the transactions generator
type TransactionGeneratorConfig struct {
	Rows              int       `json:"rows"`
	Customers         int       `json:"customers"`
	Products          int       `json:"products"`
	MissingRatingRate float64   `json:"missing_rating_rate"`
	ReturnRate        float64   `json:"return_rate"`
	StartDate         time.Time `json:"start_date"`
	Days              int       `json:"days"`
	Seed              int64     `json:"seed"`
}

// DefaultTransactionConfig returns sensible defaults for transaction generation
func DefaultTransactionConfig() TransactionGeneratorConfig {
	return TransactionGeneratorConfig{
		Rows:              Presets["medium"],
		Customers:         50000,
		Products:          5000,
		MissingRatingRate: 0.10,
		ReturnRate:        0.20,
		StartDate:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:              1095,
		Seed:              42,
	}
}

// TransactionGenerator produces retail transaction records one at a time
type TransactionGenerator struct {
	config TransactionGeneratorConfig
	rng    *rand.Rand
	next   int
}

// NewTransactionGenerator creates a seeded generator
func NewTransactionGenerator(config TransactionGeneratorConfig) *TransactionGenerator {
	d := DefaultTransactionConfig()
	if config.Customers <= 0 {
		config.Customers = d.Customers
	}
	if config.Products <= 0 {
		config.Products = d.Products
	}
	if config.Days <= 0 {
		config.Days = d.Days
	}
	if config.StartDate.IsZero() {
		config.StartDate = d.StartDate
	}
	return &TransactionGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Remaining returns how many records are left to generate
func (g *TransactionGenerator) Remaining() int { return g.config.Rows - g.next }

// Record generates the next transaction, or nil once Rows records were produced
func (g *TransactionGenerator) Record() []string {
	if g.next >= g.config.Rows {
		return nil
	}
	g.next++

	ts := g.config.StartDate.Add(
		time.Duration(g.rng.Intn(g.config.Days+1))*24*time.Hour +
			time.Duration(g.rng.Intn(24))*time.Hour +
			time.Duration(g.rng.Intn(60))*time.Minute)
	quantity := 1 + g.rng.Intn(10)
	unitPrice := round2(5.99 + g.rng.Float64()*(999.99-5.99))
	discount := discounts[g.rng.Intn(len(discounts))]
	total := round2(float64(quantity) * unitPrice * (1 - discount))

	rating := ""
	if g.rng.Float64() >= g.config.MissingRatingRate {
		rating = strconv.FormatFloat(math.Round((1+g.rng.Float64()*4)*10)/10, 'f', 1, 64)
	}
	returned := "No"
	if g.rng.Float64() < g.config.ReturnRate {
		returned = "Yes"
	}

	return []string{
		fmt.Sprintf("TXN%08d", g.next),
		ts.Format("2006-01-02T15:04:05"),
		fmt.Sprintf("CUST%06d", 1+g.rng.Intn(g.config.Customers)),
		fmt.Sprintf("PROD%05d", 1+g.rng.Intn(g.config.Products)),
		categories[g.rng.Intn(len(categories))],
		strconv.Itoa(quantity),
		strconv.FormatFloat(unitPrice, 'f', -1, 64),
		strconv.FormatFloat(total, 'f', -1, 64),
		paymentMethods[g.rng.Intn(len(paymentMethods))],
		locations[g.rng.Intn(len(locations))],
		strconv.FormatFloat(discount, 'f', -1, 64),
		strconv.Itoa(18 + g.rng.Intn(63)),
		segments[g.rng.Intn(len(segments))],
		rating,
		returned,
	}
}

// WriteCSV writes the header and every remaining record to w. Progress is
// logged every 5%.
func (g *TransactionGenerator) WriteCSV(ctx context.Context, w io.Writer, logger *internal.Logger) (int, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	logger = logger.With("TransactionGenerator")

	writer := csv.NewWriter(w)
	if err := writer.Write(TransactionColumns); err != nil {
		return 0, err
	}

	total := g.Remaining()
	interval := max(total/20, 1)
	written := 0
	for record := g.Record(); record != nil; record = g.Record() {
		if written%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}
		if err := writer.Write(record); err != nil {
			return written, err
		}
		written++
		if written%interval == 0 {
			logger.Info("Progress: %d%% (%d rows)", written*100/total, written)
		}
	}
	writer.Flush()
	return written, writer.Error()
}

// WriteXLSX writes the header and every remaining record to the first sheet
// of a new workbook through the excelize stream writer. Numeric fields are
// stored as numbers and empty fields as blank cells.
func (g *TransactionGenerator) WriteXLSX(ctx context.Context, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(f.GetSheetName(0))
	if err != nil {
		return 0, err
	}
	header := make([]interface{}, len(TransactionColumns))
	for i, h := range TransactionColumns {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, err
	}

	written := 0
	for record := g.Record(); record != nil; record = g.Record() {
		if written%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}
		values := make([]interface{}, len(record))
		for j, field := range record {
			switch v, err := strconv.ParseFloat(field, 64); {
			case field == "":
				values[j] = nil
			case err == nil:
				values[j] = v
			default:
				values[j] = field
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, written+2)
		if err != nil {
			return written, err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return written, err
		}
		written++
	}
	if err := sw.Flush(); err != nil {
		return written, err
	}
	if _, err := f.WriteTo(w); err != nil {
		return written, err
	}
	return written, nil
}

// Source streams the remaining records as a row source without buffering them
func (g *TransactionGenerator) Source() ports.RowSource {
	return &generatorSource{gen: g, total: int64(g.Remaining())}
}

type generatorSource struct {
	gen   *TransactionGenerator
	total int64
}

func (s *generatorSource) Columns() []string { return TransactionColumns }

func (s *generatorSource) Next(ctx context.Context) (table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record := s.gen.Record()
	if record == nil {
		return nil, io.EOF
	}
	return parseRecord(record), nil
}

func (s *generatorSource) TotalRows() (int64, bool) { return s.total, true }

func parseRecord(record []string) table.Row {
	row := make(table.Row, len(record))
	for j, field := range record {
		row[j] = coercer.ParseCell(field)
	}
	return row
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
