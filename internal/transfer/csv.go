package transfer

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/domain"
)

// csvColumns is the export column order.
var csvColumns = []string{"Date", "Description", "Category", "Tags", "Account", "Amount"}

// Import defaults for absent optional columns. "Conta Fixa" matches the
// legacy category name so old spreadsheets keep importing cleanly.
const (
	defaultCategory = "Conta Fixa"
	defaultAccount  = "Checking"
)

// ParseCSV reads transactions from a CSV stream. The header row is matched
// case-insensitively; Date, Description and Amount are required columns.
// Rows that fail to parse are logged and skipped, never fatal. The sign of
// each amount is normalized from its category.
func ParseCSV(r io.Reader, catalog domain.Catalog, log zerolog.Logger) ([]domain.Transaction, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, 0, fmt.Errorf("empty CSV input")
	}
	header := splitCSVLine(scanner.Text())

	columns := make(map[string]int)
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := columns[required]; !ok {
			return nil, 0, fmt.Errorf("missing required column %q", required)
		}
	}

	var (
		txs     []domain.Transaction
		skipped int
		lineNo  = 1
	)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		tx, err := parseRow(splitCSVLine(line), columns, catalog)
		if err != nil {
			skipped++
			log.Warn().Err(err).Int("line", lineNo).Msg("Skipping CSV row")
			continue
		}
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read CSV: %w", err)
	}
	return txs, skipped, nil
}

func parseRow(fields []string, columns map[string]int, catalog domain.Catalog) (domain.Transaction, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return fields[i]
	}

	date, err := domain.ParseDate(get("date"))
	if err != nil {
		return domain.Transaction{}, err
	}

	description := get("description")
	if description == "" {
		return domain.Transaction{}, fmt.Errorf("missing description")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(get("amount")), 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("bad amount %q", get("amount"))
	}

	category := get("category")
	if category == "" {
		category = defaultCategory
	}
	account := get("account")
	if account == "" {
		account = defaultAccount
	}

	tags := []string{}
	for _, tag := range strings.Split(get("tags"), ";") {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}

	if catalog.IsIncomeCategory(category) {
		amount = math.Abs(amount)
	} else {
		amount = -math.Abs(amount)
	}

	return domain.Transaction{
		Date:        date,
		Description: description,
		Category:    category,
		Tags:        tags,
		Account:     account,
		Amount:      amount,
	}, nil
}

// splitCSVLine splits one line on commas, honoring double-quoted fields
// with "" as the escaped quote. Fields come back trimmed.
func splitCSVLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// ExportCSV renders the transaction list in the import column order.
func ExportCSV(txs []domain.Transaction) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(csvColumns, ","))
	b.WriteByte('\n')

	for _, tx := range txs {
		row := []string{
			tx.Date.String(),
			quoteCSV(tx.Description),
			quoteCSV(tx.Category),
			quoteCSV(strings.Join(tx.Tags, ";")),
			quoteCSV(tx.Account),
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// quoteCSV wraps a field in quotes when it needs them.
func quoteCSV(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
