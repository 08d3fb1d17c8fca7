package results

import (
	"fmt"
	"html"
	"os"
	"strings"
	"time"
)

// WriteHTML generates a self-contained HTML report for an experiment.
//
// The report includes:
//   - Summary dashboard with score, cost, and iteration counts
//   - Per-model ranking table with confidence intervals
//   - Recommendations
//   - Inline CSS (no external dependencies)
func WriteHTML(outputPath string, report Report) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder

	sb.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Edison Experiment Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            background: #f5f5f5;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 {
            color: #2c3e50;
            margin-bottom: 10px;
            font-size: 2em;
        }
        h2 {
            color: #2c3e50;
            margin-bottom: 15px;
            font-size: 1.5em;
            margin-top: 20px;
        }
        .timestamp {
            color: #7f8c8d;
            font-size: 0.9em;
            margin-bottom: 30px;
        }
        .summary {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .summary-card {
            background: #ecf0f1;
            padding: 20px;
            border-radius: 6px;
            text-align: center;
        }
        .summary-card.score {
            background: #d4edda;
            border-left: 4px solid #28a745;
        }
        .summary-card.cost {
            background: #fff3cd;
            border-left: 4px solid #ffc107;
        }
        .summary-card.total {
            background: #d1ecf1;
            border-left: 4px solid #17a2b8;
        }
        .summary-card h3 {
            font-size: 0.9em;
            color: #6c757d;
            margin-bottom: 10px;
            text-transform: uppercase;
            letter-spacing: 1px;
        }
        .summary-card .value {
            font-size: 2.5em;
            font-weight: bold;
            color: #2c3e50;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            margin-bottom: 30px;
        }
        th, td {
            padding: 10px 12px;
            text-align: left;
            border-bottom: 1px solid #dee2e6;
        }
        th {
            background: #f8f9fa;
            color: #495057;
            text-transform: uppercase;
            font-size: 0.85em;
            letter-spacing: 0.5px;
        }
        tr:first-child td {
            font-weight: bold;
        }
        .recommendations li {
            margin-left: 20px;
            margin-bottom: 8px;
        }
    </style>
</head>
<body>
    <div class="container">
`)

	sb.WriteString("        <h1>Edison Experiment Report</h1>\n")
	fmt.Fprintf(&sb, "        <p class=\"timestamp\">Generated %s</p>\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&sb, "        <p>%s</p>\n", html.EscapeString(report.Objective))

	sb.WriteString("        <div class=\"summary\">\n")
	writeCard(&sb, "score", "Best Composite", fmt.Sprintf("%.2f", report.CompositeScore))
	writeCard(&sb, "total", "Iterations", fmt.Sprintf("%d", report.IterationsRun))
	writeCard(&sb, "cost", "Total Cost", fmt.Sprintf("$%.4f", report.TotalCostUSD))
	writeCard(&sb, "total", "Total Tokens", fmt.Sprintf("%d", report.TotalTokens))
	sb.WriteString("        </div>\n")

	fmt.Fprintf(&sb, "        <p><strong>Stop reason:</strong> %s</p>\n", html.EscapeString(report.StopReason))
	fmt.Fprintf(&sb, "        <p><strong>Best prompt version:</strong> %s</p>\n", html.EscapeString(report.BestPromptVersionID))

	if len(report.PerModelRanking) > 0 {
		sb.WriteString("        <h2>Model Ranking</h2>\n")
		sb.WriteString("        <table>\n            <tr><th>Model</th><th>Composite</th><th>95% CI</th><th>Cost</th></tr>\n")
		for _, r := range report.PerModelRanking {
			fmt.Fprintf(&sb, "            <tr><td>%s</td><td>%.2f</td><td>[%.2f, %.2f]</td><td>$%.4f</td></tr>\n",
				html.EscapeString(r.ModelID), r.Composite, r.CI.Lower, r.CI.Upper, r.CostUSD)
		}
		sb.WriteString("        </table>\n")
	}

	if len(report.Recommendations) > 0 {
		sb.WriteString("        <h2>Recommendations</h2>\n        <ul class=\"recommendations\">\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&sb, "            <li>%s</li>\n", html.EscapeString(rec))
		}
		sb.WriteString("        </ul>\n")
	}

	sb.WriteString("    </div>\n</body>\n</html>\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeCard(sb *strings.Builder, class, label, value string) {
	fmt.Fprintf(sb, "            <div class=\"summary-card %s\"><h3>%s</h3><div class=\"value\">%s</div></div>\n",
		class, html.EscapeString(label), html.EscapeString(value))
}
