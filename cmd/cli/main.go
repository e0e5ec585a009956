package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/backup"
	"github.com/dvloznov/devfinance/internal/budget"
	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/exchange"
	"github.com/dvloznov/devfinance/internal/forecast"
	"github.com/dvloznov/devfinance/internal/ledger"
	"github.com/dvloznov/devfinance/internal/logger"
	"github.com/dvloznov/devfinance/internal/metrics"
	"github.com/dvloznov/devfinance/internal/storage"
	"github.com/dvloznov/devfinance/internal/transfer"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runAdd(log)
	case "list":
		runList(log)
	case "dashboard":
		runDashboard(log)
	case "summary":
		runSummary(log)
	case "budgets":
		runBudgets(log)
	case "forecast":
		runForecast(log)
	case "rates":
		runRates(log)
	case "import":
		runImport(log)
	case "export":
		runExport(log)
	case "backup":
		runBackup(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("DevFinance CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add        Record a transaction")
	fmt.Println("  list       List transactions")
	fmt.Println("  dashboard  Show the dashboard metrics")
	fmt.Println("  summary    Show income vs fixed costs for the month")
	fmt.Println("  budgets    Show budget status")
	fmt.Println("  forecast   Project income and expenses forward")
	fmt.Println("  rates      Show BRL exchange rates")
	fmt.Println("  import     Import transactions from a JSON backup or CSV")
	fmt.Println("  export     Export data to JSON, CSV or an HTML report")
	fmt.Println("  backup     Run or configure automatic backups")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func defaultDataDir() string {
	if env := os.Getenv("DEVFINANCE_DATA_DIR"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".devfinance")
}

func openLedger(log zerolog.Logger, dataDir string) (*ledger.Store, *storage.Store) {
	st, err := storage.Open(dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	led, err := ledger.Open(st, events.NewBus(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	return led, st
}

func runAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	date := fs.String("date", time.Now().Format("2006-01-02"), "Transaction date (YYYY-MM-DD or DD/MM/YYYY)")
	description := fs.String("desc", "", "Description")
	category := fs.String("category", "Fixed", "Category id or name")
	account := fs.String("account", "Checking", "Account name")
	amount := fs.Float64("amount", 0, "Amount (sign is derived from the category)")
	tags := fs.String("tags", "", "Semicolon-separated tags")
	debtID := fs.String("debt", "", "Debt id to apply the amount against")
	fs.Parse(os.Args[2:])

	if *description == "" || *amount == 0 {
		log.Fatal().Msg("Usage: cli add -desc TEXT -amount N [-category NAME] [-date YYYY-MM-DD]")
	}

	parsedDate, err := domain.ParseDate(*date)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date")
	}

	var tagList []string
	for _, tag := range strings.Split(*tags, ";") {
		if t := strings.TrimSpace(tag); t != "" {
			tagList = append(tagList, t)
		}
	}

	led, _ := openLedger(log, *dataDir)
	tx, err := led.AddTransaction(domain.Transaction{
		Date:        parsedDate,
		Description: *description,
		Category:    *category,
		Account:     *account,
		Amount:      *amount,
		Tags:        tagList,
	}, *debtID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add transaction")
	}

	fmt.Printf("Added %s: %s %.2f (%s)\n", tx.ID, tx.Description, tx.Amount, tx.Category)
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	month := fs.String("month", "", "Restrict to a month (YYYY-MM)")
	category := fs.String("category", "", "Restrict to a category")
	fs.Parse(os.Args[2:])

	var (
		filterYear  int
		filterMonth time.Month
	)
	if *month != "" {
		parsed, err := time.Parse("2006-01", *month)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -month, want YYYY-MM")
		}
		filterYear, filterMonth = parsed.Year(), parsed.Month()
	}

	led, _ := openLedger(log, *dataDir)
	count := 0
	for _, tx := range led.Transactions() {
		if *month != "" && !tx.Date.SameMonth(filterYear, filterMonth) {
			continue
		}
		if *category != "" && tx.Category != *category {
			continue
		}
		count++
		fmt.Printf("%s  %-10s  %-30s  %-12s  %10.2f\n",
			tx.ID[:8], tx.Date, truncate(tx.Description, 30), tx.Category, tx.Amount)
	}
	fmt.Printf("\n%d transactions\n", count)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func runDashboard(log zerolog.Logger) {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	fs.Parse(os.Args[2:])

	led, _ := openLedger(log, *dataDir)
	m := metrics.Dashboard(led.Transactions(), led.Catalog(), time.Now())

	fmt.Println("\n=== Dashboard ===")
	fmt.Printf("Revenue (month):   %12.2f\n", m.Revenue)
	fmt.Printf("Expenses (month):  %12.2f\n", m.Expenses)
	fmt.Printf("Net worth:         %12.2f\n", m.NetWorth)
	fmt.Printf("Runway (months):   %12.1f\n", m.RunwayMonths)

	fmt.Println("\nMonth       Revenue   Expenses        Net")
	for _, p := range m.MonthlySeries {
		fmt.Printf("%-9s %9.2f  %9.2f  %9.2f\n", p.Month, p.Revenue, p.Expenses, p.Net)
	}
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	fs.Parse(os.Args[2:])

	led, _ := openLedger(log, *dataDir)
	s := metrics.Summary(led.Transactions(), led.Debts(), led.Catalog(), time.Now())

	fmt.Println("\n=== Monthly Summary ===")
	fmt.Printf("Income:           %12.2f  (%d entries)\n", s.IncomeTotal, len(s.Incomes))
	fmt.Printf("Fixed costs:      %12.2f  (%d entries)\n", s.FixedCostTotal, len(s.FixedCosts))
	fmt.Printf("Outstanding debt: %12.2f\n", s.DebtOutstanding)
	fmt.Printf("Remainder:        %12.2f\n", s.Remainder)
}

func runBudgets(log zerolog.Logger) {
	fs := flag.NewFlagSet("budgets", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	attention := fs.Bool("attention", false, "Only budgets needing attention")
	fs.Parse(os.Args[2:])

	led, _ := openLedger(log, *dataDir)
	now := time.Now()

	statuses := budget.Statuses(led.Budgets(), led.Transactions(), now)
	if *attention {
		statuses = budget.NeedingAttention(led.Budgets(), led.Transactions(), now)
	}
	if len(statuses) == 0 {
		fmt.Println("No budgets.")
		return
	}

	fmt.Println("\nCategory         Spend      Limit    Used  Status")
	for _, s := range statuses {
		state := "ok"
		if s.IsOverBudget {
			state = "OVER"
		} else if s.ShouldAlert {
			state = "alert"
		}
		fmt.Printf("%-12s %9.2f  %9.2f  %5.1f%%  %s\n",
			s.Budget.CategoryName, s.Spend, s.Budget.Limit, s.Percentage, state)
	}
}

func runForecast(log zerolog.Logger) {
	fs := flag.NewFlagSet("forecast", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	months := fs.Int("months", 6, "Months to project")
	fs.Parse(os.Args[2:])

	led, _ := openLedger(log, *dataDir)
	now := time.Now()

	fmt.Println("\nMonth        Income   Expenses    Balance  Confidence")
	for _, p := range forecast.Forecast(led.Transactions(), led.Catalog(), now, *months) {
		fmt.Printf("%-9s %9.2f  %9.2f  %9.2f        %3.0f%%\n",
			p.Month, p.ProjectedIncome, p.ProjectedExpenses, p.ProjectedBalance, p.Confidence)
	}

	a := forecast.AnalyzeTrends(led.Transactions(), led.Catalog(), now)
	fmt.Printf("\nIncome trend:  %s (%.1f%%)\n", a.IncomeTrend, a.IncomeGrowthRate)
	fmt.Printf("Expense trend: %s (%.1f%%)\n", a.ExpenseTrend, a.ExpenseGrowthRate)
	fmt.Printf("Runway:        %.1f months\n", a.PredictedRunwayMonths)
}

func runRates(log zerolog.Logger) {
	fs := flag.NewFlagSet("rates", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	fs.Parse(os.Args[2:])

	st, err := storage.Open(*dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := exchange.NewClient(st, log).Rates(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rates")
	}

	fmt.Printf("\nBRL exchange rates (%s, %s)\n\n", result.Source, result.UpdatedAt.Format("2006-01-02 15:04"))
	for _, r := range result.Rates {
		fmt.Printf("%-4s %-16s %14.4f\n", r.Code, r.Name, r.Rate)
	}
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	file := fs.String("file", "", "Path to the JSON backup or CSV file")
	format := fs.String("format", "", "json or csv (defaults from the file extension)")
	mode := fs.String("mode", "merge", "merge or replace (JSON imports only)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Usage: cli import -file PATH [-format json|csv] [-mode merge|replace]")
	}
	if *format == "" {
		*format = strings.TrimPrefix(filepath.Ext(*file), ".")
	}

	led, _ := openLedger(log, *dataDir)

	switch *format {
	case "json":
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read file")
		}
		snap, err := transfer.ParseBackup(data)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid backup")
		}
		if err := led.ImportData(snap, ledger.ImportMode(*mode)); err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
		fmt.Printf("Imported %d transactions (%s)\n", len(snap.Transactions), *mode)
	case "csv":
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open file")
		}
		defer f.Close()

		txs, skipped, err := transfer.ParseCSV(f, led.Catalog(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
		if err := led.ImportData(ledger.Snapshot{Transactions: txs}, ledger.ModeMerge); err != nil {
			log.Fatal().Err(err).Msg("Failed to store imported rows")
		}
		fmt.Printf("Imported %d transactions, skipped %d rows\n", len(txs), skipped)
	default:
		log.Fatal().Str("format", *format).Msg("Unknown import format")
	}
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	file := fs.String("file", "", "Output path")
	format := fs.String("format", "json", "json, csv or report")
	fs.Parse(os.Args[2:])

	led, _ := openLedger(log, *dataDir)
	now := time.Now()

	var (
		out []byte
		err error
		ext string
	)
	switch *format {
	case "json":
		out, err = transfer.ExportJSON(led.Snapshot(), now)
		ext = "json"
	case "csv":
		out = transfer.ExportCSV(led.Transactions())
		ext = "csv"
	case "report":
		catalog := led.Catalog()
		out, err = transfer.HTMLReport(
			metrics.Dashboard(led.Transactions(), catalog, now),
			metrics.Summary(led.Transactions(), led.Debts(), catalog, now),
			now,
		)
		ext = "html"
	default:
		log.Fatal().Str("format", *format).Msg("Unknown export format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	path := *file
	if path == "" {
		path = fmt.Sprintf("devfinance_export_%s.%s", now.Format("2006-01-02"), ext)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}
	fmt.Printf("Exported to %s (%d bytes)\n", path, len(out))
}

func runBackup(log zerolog.Logger) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory")
	bucket := fs.String("bucket", os.Getenv("BACKUP_BUCKET"), "GCS bucket (empty writes to <data-dir>/backups)")
	enable := fs.String("enable", "", "Turn automatic backups on or off (true|false)")
	frequency := fs.String("frequency", "", "Set the cadence (daily|weekly|monthly|never)")
	run := fs.Bool("run", false, "Run a backup now")
	fs.Parse(os.Args[2:])

	led, st := openLedger(log, *dataDir)

	ctx := context.Background()
	var target backup.Target
	if *bucket != "" {
		gcsTarget, err := backup.NewGCSTarget(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS target")
		}
		defer gcsTarget.Close()
		target = gcsTarget
	} else {
		localTarget, err := backup.NewLocalDirTarget(filepath.Join(*dataDir, "backups"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local target")
		}
		target = localTarget
	}

	scheduler, err := backup.NewScheduler(st, log, target, func(now time.Time) ([]byte, error) {
		return transfer.ExportJSON(led.Snapshot(), now)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}

	if *enable != "" {
		scheduler.SetEnabled(*enable == "true")
	}
	if *frequency != "" {
		if err := scheduler.SetFrequency(backup.Frequency(*frequency)); err != nil {
			log.Fatal().Err(err).Msg("Invalid frequency")
		}
	}
	if *run {
		if err := scheduler.RunOnce(ctx, time.Now()); err != nil {
			log.Fatal().Err(err).Msg("Backup failed")
		}
		fmt.Println("Backup completed.")
	}

	fmt.Printf("Auto backup: enabled=%v frequency=%s last=%s\n",
		scheduler.Enabled(), scheduler.Frequency(), formatLast(scheduler.LastBackup()))
}

func formatLast(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}
