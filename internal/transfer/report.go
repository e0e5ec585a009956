package transfer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dvloznov/devfinance/internal/metrics"
)

// reportTemplate is the standalone printable report. It replaces the
// print-window flow of the browser client: callers save or open the file
// and print from there.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>DevFinance Report {{.Date}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2rem; color: #111; }
h1 { border-bottom: 2px solid #111; padding-bottom: .5rem; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #ccc; padding: .4rem .6rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.negative { color: #b91c1c; }
.positive { color: #15803d; }
</style>
</head>
<body>
<h1>Financial Report</h1>
<p>Generated {{.Date}}</p>

<h2>This Month</h2>
<table>
<tr><th>Revenue</th><td class="positive">{{printf "%.2f" .Dashboard.Revenue}}</td></tr>
<tr><th>Expenses</th><td class="negative">{{printf "%.2f" .Dashboard.Expenses}}</td></tr>
<tr><th>Net worth</th><td>{{printf "%.2f" .Dashboard.NetWorth}}</td></tr>
<tr><th>Runway (months)</th><td>{{printf "%.1f" .Dashboard.RunwayMonths}}</td></tr>
</table>

<h2>Monthly History</h2>
<table>
<tr><th>Month</th><th>Revenue</th><th>Expenses</th><th>Net</th></tr>
{{range .Dashboard.MonthlySeries}}<tr><td>{{.Month}}</td><td>{{printf "%.2f" .Revenue}}</td><td>{{printf "%.2f" .Expenses}}</td><td>{{printf "%.2f" .Net}}</td></tr>
{{end}}</table>

<h2>Income vs Fixed Costs</h2>
<table>
<tr><th>Income total</th><td>{{printf "%.2f" .Summary.IncomeTotal}}</td></tr>
<tr><th>Fixed costs</th><td>{{printf "%.2f" .Summary.FixedCostTotal}}</td></tr>
<tr><th>Outstanding debt</th><td>{{printf "%.2f" .Summary.DebtOutstanding}}</td></tr>
<tr><th>Remainder</th><td>{{printf "%.2f" .Summary.Remainder}}</td></tr>
</table>
</body>
</html>
`))

type reportData struct {
	Date      string
	Dashboard metrics.DashboardMetrics
	Summary   metrics.MonthlySummary
}

// HTMLReport renders the printable report.
func HTMLReport(dashboard metrics.DashboardMetrics, summary metrics.MonthlySummary, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	data := reportData{
		Date:      now.Format("2006-01-02"),
		Dashboard: dashboard,
		Summary:   summary,
	}
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
