// Dataset validator for generated test fixtures.
//
// Checks that an invoice export and a bank statement form a coherent
// test pair: required headers present, amounts positive, dates parseable,
// and every invoice number cited in a transfer title actually exists in
// the invoice file.
//
// Run from this directory with:
//
//	go run dataset_validator.go -invoices ../generated_invoices.csv -statement ../generated_statement.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var numberPattern = regexp.MustCompile(`(?:FV|faktura)\s*(\d(?: ?\d)*)\s?/\s?(\d{1,2})\s?/\s?(\d{4})`)

func main() {
	var (
		invoicePath   = flag.String("invoices", "", "invoice CSV path (required)")
		statementPath = flag.String("statement", "", "bank statement CSV path (required)")
	)
	flag.Parse()

	if *invoicePath == "" || *statementPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var problems []string

	numbers, invoiceCount, errs := validateInvoices(*invoicePath)
	problems = append(problems, errs...)

	transferCount, cited, errs := validateStatement(*statementPath)
	problems = append(problems, errs...)

	missing := 0
	for number := range cited {
		if !numbers[number] {
			missing++
			if missing <= 10 {
				problems = append(problems, fmt.Sprintf("statement cites unknown invoice number %q", number))
			}
		}
	}
	if missing > 10 {
		problems = append(problems, fmt.Sprintf("... and %d more unknown invoice numbers", missing-10))
	}

	fmt.Printf("Invoices:  %d\n", invoiceCount)
	fmt.Printf("Transfers: %d (%d citing invoice numbers)\n", transferCount, len(cited))

	if len(problems) > 0 {
		fmt.Printf("\n%d problems found:\n", len(problems))
		for _, problem := range problems {
			fmt.Printf("  - %s\n", problem)
		}
		os.Exit(1)
	}
	fmt.Println("Dataset is valid.")
}

func validateInvoices(path string) (map[string]bool, int, []string) {
	records, header, errs := readCSV(path)
	numbers := make(map[string]bool)

	required := []string{"number", "issue_date", "gross_amount", "buyer_name"}
	for _, column := range required {
		if _, ok := header[column]; !ok {
			errs = append(errs, fmt.Sprintf("%s: missing required column %q", path, column))
			return numbers, 0, errs
		}
	}

	for i, record := range records {
		line := i + 2
		number := canonical(record[header["number"]])
		if number == "" {
			errs = append(errs, fmt.Sprintf("%s:%d: empty invoice number", path, line))
			continue
		}
		if numbers[number] {
			errs = append(errs, fmt.Sprintf("%s:%d: duplicate invoice number %q", path, line, number))
		}
		numbers[number] = true

		if _, err := time.Parse("2006-01-02", record[header["issue_date"]]); err != nil {
			errs = append(errs, fmt.Sprintf("%s:%d: bad issue date: %v", path, line, err))
		}
		if amount, err := decimal.NewFromString(record[header["gross_amount"]]); err != nil || !amount.IsPositive() {
			errs = append(errs, fmt.Sprintf("%s:%d: bad gross amount %q", path, line, record[header["gross_amount"]]))
		}
	}
	return numbers, len(records), errs
}

func validateStatement(path string) (int, map[string]bool, []string) {
	records, header, errs := readCSV(path)
	cited := make(map[string]bool)

	required := []string{"transaction_date", "amount", "title"}
	for _, column := range required {
		if _, ok := header[column]; !ok {
			errs = append(errs, fmt.Sprintf("%s: missing required column %q", path, column))
			return 0, cited, errs
		}
	}

	for i, record := range records {
		line := i + 2
		if _, err := time.Parse("2006-01-02", record[header["transaction_date"]]); err != nil {
			errs = append(errs, fmt.Sprintf("%s:%d: bad transaction date: %v", path, line, err))
		}
		if amount, err := decimal.NewFromString(record[header["amount"]]); err != nil || amount.IsZero() {
			errs = append(errs, fmt.Sprintf("%s:%d: bad amount %q", path, line, record[header["amount"]]))
		}

		for _, match := range numberPattern.FindAllStringSubmatch(record[header["title"]], -1) {
			sequence := strings.ReplaceAll(match[1], " ", "")
			cited[fmt.Sprintf("FV %s/%s/%s", sequence, match[2], match[3])] = true
		}
	}
	return len(records), cited, errs
}

func canonical(number string) string {
	return strings.Join(strings.Fields(number), " ")
}

func readCSV(path string) ([][]string, map[string]int, []string) {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("Cannot open %s: %v", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	all, err := reader.ReadAll()
	if err != nil {
		log.Fatalf("Cannot parse %s: %v", path, err)
	}
	if len(all) == 0 {
		return nil, nil, []string{fmt.Sprintf("%s: file is empty", path)}
	}

	header := make(map[string]int)
	for i, column := range all[0] {
		header[strings.TrimSpace(column)] = i
	}
	return all[1:], header, nil
}
