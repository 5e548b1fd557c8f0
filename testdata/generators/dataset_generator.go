// Dataset generator for matching tests and demos.
//
// Generates a correlated pair of CSV files: an invoice export and a bank
// statement, where a configurable share of invoices is paid. Paid
// invoices produce transfers exercising the title heuristics the matcher
// has to cope with: verbatim invoice numbers, squeezed or split digits,
// sender name variants, and one transfer covering several invoices of
// the same buyer.
//
// Run from this directory with:
//
//	go run dataset_generator.go -invoices 500 -paid-rate 0.8 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type buyer struct {
	name     string
	variants []string
	taxID    string
}

var buyers = []buyer{
	{
		name:     "Alfa Handel Sp. z o.o.",
		variants: []string{"ALFA HANDEL SP Z O O", "Alfa Handel", "ALFA HANDEL SPOLKA Z O.O."},
		taxID:    "5213017228",
	},
	{
		name:     "Beta Serwis S.A.",
		variants: []string{"BETA SERWIS SA", "BETA SERWIS SPOLKA AKCYJNA"},
		taxID:    "7010001454",
	},
	{
		name:     "Gamma Logistyka Sp. z o.o.",
		variants: []string{"GAMMA LOGISTYKA", "GAMMA LOGISTYKA SP ZOO"},
		taxID:    "9512287384",
	},
	{
		name:     "Delta Budownictwo PHU",
		variants: []string{"DELTA BUDOWNICTWO", "PHU DELTA"},
		taxID:    "6762466483",
	},
	{
		name:     "Epsilon Consulting",
		variants: []string{"EPSILON CONSULTING", "Jan Kowalski Epsilon"},
		taxID:    "1132779593",
	},
}

type invoiceRow struct {
	id       string
	number   string
	issue    time.Time
	due      time.Time
	gross    decimal.Decimal
	buyer    buyer
	sequence int
}

func main() {
	var (
		invoiceOut   = flag.String("invoice-output", "generated_invoices.csv", "invoice CSV output path")
		statementOut = flag.String("statement-output", "generated_statement.csv", "bank statement CSV output path")
		count        = flag.Int("invoices", 200, "number of invoices to generate")
		paidRate     = flag.Float64("paid-rate", 0.8, "share of invoices that receive a transfer")
		groupRate    = flag.Float64("group-rate", 0.1, "share of paid invoices settled in group transfers")
		noise        = flag.Int("noise", 20, "number of unrelated transfers")
		month        = flag.String("month", "2025-12", "issue month (YYYY-MM)")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "random seed for reproducible generation")
	)
	flag.Parse()

	monthStart, err := time.Parse("2006-01", *month)
	if err != nil {
		log.Fatalf("Invalid month: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	invoices := generateInvoices(rng, *count, monthStart)

	if err := writeInvoices(*invoiceOut, invoices); err != nil {
		log.Fatalf("Failed to write invoices: %v", err)
	}

	transfers := generateTransfers(rng, invoices, *paidRate, *groupRate, *noise)
	if err := writeStatement(*statementOut, transfers); err != nil {
		log.Fatalf("Failed to write statement: %v", err)
	}

	fmt.Printf("Generated %d invoices -> %s\n", len(invoices), *invoiceOut)
	fmt.Printf("Generated %d transfers -> %s\n", len(transfers), *statementOut)
	fmt.Printf("Seed: %d\n", *seed)
}

func generateInvoices(rng *rand.Rand, count int, monthStart time.Time) []invoiceRow {
	invoices := make([]invoiceRow, 0, count)
	for i := 0; i < count; i++ {
		b := buyers[rng.Intn(len(buyers))]
		issue := monthStart.AddDate(0, 0, rng.Intn(28))
		gross := decimal.NewFromFloat(float64(rng.Intn(990000)+1000) / 100)

		invoices = append(invoices, invoiceRow{
			id:       fmt.Sprintf("inv-%04d", i+1),
			number:   fmt.Sprintf("FV %d/%d/%d", i+1, int(issue.Month()), issue.Year()),
			issue:    issue,
			due:      issue.AddDate(0, 0, 14),
			gross:    gross,
			buyer:    b,
			sequence: i + 1,
		})
	}
	return invoices
}

type transferRow struct {
	id     string
	date   time.Time
	amount decimal.Decimal
	sender string
	title  string
}

func generateTransfers(rng *rand.Rand, invoices []invoiceRow, paidRate, groupRate float64, noise int) []transferRow {
	var transfers []transferRow
	next := 1
	emit := func(date time.Time, amount decimal.Decimal, sender, title string) {
		transfers = append(transfers, transferRow{
			id:     fmt.Sprintf("pay-%04d", next),
			date:   date,
			amount: amount,
			sender: sender,
			title:  title,
		})
		next++
	}

	// Group transfers: pick runs of invoices sharing a buyer.
	grouped := make(map[string]bool)
	byBuyer := make(map[string][]invoiceRow)
	for _, inv := range invoices {
		byBuyer[inv.buyer.taxID] = append(byBuyer[inv.buyer.taxID], inv)
	}
	groupBudget := int(float64(len(invoices)) * paidRate * groupRate)
	for _, batch := range byBuyer {
		if groupBudget < 2 || len(batch) < 2 {
			continue
		}
		size := 2 + rng.Intn(2)
		if size > len(batch) {
			size = len(batch)
		}
		total := decimal.Zero
		numbers := make([]string, 0, size)
		last := batch[0]
		for _, inv := range batch[:size] {
			total = total.Add(inv.gross)
			numbers = append(numbers, inv.number)
			grouped[inv.id] = true
			last = inv
		}
		emit(last.due.AddDate(0, 0, rng.Intn(5)), total,
			senderFor(rng, last.buyer),
			"przelew zbiorczy "+strings.Join(numbers, ", "))
		groupBudget -= size
	}

	// Regular transfers for the remaining paid invoices.
	for _, inv := range invoices {
		if grouped[inv.id] || rng.Float64() > paidRate {
			continue
		}
		date := inv.due.AddDate(0, 0, rng.Intn(9)-4)
		emit(date, inv.gross, senderFor(rng, inv.buyer), titleFor(rng, inv))
	}

	// Unrelated traffic.
	for i := 0; i < noise; i++ {
		amount := decimal.NewFromFloat(float64(rng.Intn(490000)+1000) / 100)
		date := invoices[0].issue.AddDate(0, 0, rng.Intn(40))
		emit(date, amount, "POSTRONNY PODMIOT", "przelew srodkow wlasnych")
	}

	rng.Shuffle(len(transfers), func(i, j int) {
		transfers[i], transfers[j] = transfers[j], transfers[i]
	})
	return transfers
}

func senderFor(rng *rand.Rand, b buyer) string {
	if rng.Float64() < 0.5 {
		return b.variants[rng.Intn(len(b.variants))]
	}
	return strings.ToUpper(b.name)
}

// titleFor renders the invoice number the way real transfer titles do,
// including the degenerate spellings the matcher has to repair.
func titleFor(rng *rand.Rand, inv invoiceRow) string {
	datePart := fmt.Sprintf("%d/%d", int(inv.issue.Month()), inv.issue.Year())

	switch rng.Intn(6) {
	case 0:
		return "zaplata za " + inv.number
	case 1: // squeezed prefix
		return fmt.Sprintf("FV%d/%s", inv.sequence, datePart)
	case 2: // split digits
		digits := fmt.Sprintf("%d", inv.sequence)
		spaced := strings.Join(strings.Split(digits, ""), " ")
		return fmt.Sprintf("FV %s/%s", spaced, datePart)
	case 3: // no prefix
		return fmt.Sprintf("faktura %d/%s", inv.sequence, datePart)
	case 4: // tax id in the title instead of a clean number
		return fmt.Sprintf("platnosc NIP %s, %s", inv.buyer.taxID, inv.number)
	default:
		return inv.number
	}
}

func writeInvoices(path string, invoices []invoiceRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"id", "number", "issue_date", "due_date", "gross_amount", "currency", "buyer_name", "buyer_tax_id", "status", "kind"}); err != nil {
		return err
	}
	for _, inv := range invoices {
		record := []string{
			inv.id,
			inv.number,
			inv.issue.Format("2006-01-02"),
			inv.due.Format("2006-01-02"),
			inv.gross.StringFixed(2),
			"PLN",
			inv.buyer.name,
			inv.buyer.taxID,
			"pending",
			"standard",
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeStatement(path string, transfers []transferRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"id", "transaction_date", "amount", "currency", "sender_name", "title"}); err != nil {
		return err
	}
	for _, tr := range transfers {
		record := []string{
			tr.id,
			tr.date.Format("2006-01-02"),
			tr.amount.StringFixed(2),
			"PLN",
			tr.sender,
			tr.title,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}
