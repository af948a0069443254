// Package report renders the post-experiment HTML report.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/monitoring"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

// Reporter writes experiment reports into an output directory
type Reporter struct {
	outputDir string
}

func NewReporter(outputDir string) *Reporter {
	if outputDir == "" {
		outputDir = "./reports"
	}
	return &Reporter{outputDir: outputDir}
}

// reportData is the template context
type reportData struct {
	Request    *types.ExperimentRequest
	Results    map[types.ExperimentType]types.ExperimentResult
	Comparison map[string]monitoring.Comparison
	Generated  time.Time
}

// Generate renders the report and returns the written file path
func (r *Reporter) Generate(request *types.ExperimentRequest, results map[types.ExperimentType]types.ExperimentResult, comparison map[string]monitoring.Comparison) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", err
	}

	now := time.Now()
	path := filepath.Join(r.outputDir, fmt.Sprintf("%v_%v.html", request.Name, now.Format("20060102_150405")))

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	data := reportData{
		Request:    request,
		Results:    results,
		Comparison: comparison,
		Generated:  now,
	}
	if err := reportTemplate.Execute(file, data); err != nil {
		return "", err
	}
	return path, nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<html>
<head>
	<title>Chaos Experiment Report: {{.Request.Name}}</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 20px; }
		table { border-collapse: collapse; width: 100%; }
		th, td { text-align: left; padding: 8px; border: 1px solid #ddd; }
		th { background-color: #f2f2f2; }
		.summary { margin-bottom: 20px; }
		.metrics { margin-top: 20px; }
	</style>
</head>
<body>
	<h1>Chaos Experiment Report</h1>

	<div class="summary">
		<h2>Experiment Summary</h2>
		<p><strong>Name:</strong> {{.Request.Name}}</p>
		<p><strong>Type:</strong> {{.Request.Type}}</p>
		<p><strong>Description:</strong> {{.Request.Description}}</p>
		<p><strong>Duration:</strong> {{.Request.Duration}} seconds</p>
		<p><strong>Target Environment:</strong> {{.Request.Target.Environment}}</p>
		<p><strong>Target Service:</strong> {{.Request.Target.Service}}</p>
		<p><strong>Generated:</strong> {{.Generated.Format "2006-01-02 15:04:05"}}</p>
	</div>

	<div class="metrics">
		<h2>Fault Reversal Results</h2>
		<table>
			<tr><th>Type</th><th>Status</th><th>Reason</th></tr>
			{{range .Results}}
			<tr><td>{{.Type}}</td><td>{{.Status}}</td><td>{{.Reason}}</td></tr>
			{{end}}
		</table>
	</div>

	<div class="metrics">
		<h2>Metrics Impact</h2>
		<table>
			<tr><th>Metric</th><th>Baseline</th><th>During Experiment</th><th>Change (%)</th></tr>
			{{range $metric, $values := .Comparison}}
			<tr>
				<td>{{$metric}}</td>
				<td>{{printf "%.2f" $values.Baseline}}</td>
				<td>{{printf "%.2f" $values.Current}}</td>
				<td>{{printf "%.2f" $values.ChangePercent}}%</td>
			</tr>
			{{end}}
		</table>
	</div>

	<div class="conclusion">
		<h2>Conclusion</h2>
		<p>Success Criteria Results:</p>
		<ul>
			{{range .Request.SuccessCriteria}}
			<li>{{.}} - <em>Manual verification required</em></li>
			{{else}}
			<li>No specific success criteria defined</li>
			{{end}}
		</ul>
	</div>
</body>
</html>
`))
