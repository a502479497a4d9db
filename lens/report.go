package lens

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/go-analyze/charts"
)

const (
	reportTableMaxRecords = 10
	maxCaptureLineBytes   = 64 << 20
)

// chart color constants
var greenTextColor = charts.ColorGreenAlt3
var orangeTextColor = charts.ColorOrangeAlt1.WithAdjustHSL(0, .2, 0)
var redTextColor = charts.ColorRed.WithAdjustHSL(0, .1, -.1)

// ReportMetrics summarizes a capture file written by FileTransport.
type ReportMetrics struct {
	GeneratedAt time.Time          `json:"generated_at"`
	EventCount  int                `json:"event_count"`
	FirstEvent  string             `json:"first_event,omitempty"`
	LastEvent   string             `json:"last_event,omitempty"`
	EventTypes  map[string]int     `json:"event_types"`
	Origins     map[string]int     `json:"origins"`
	LogLevels   map[string]int     `json:"log_levels"`
	Exceptions  []ExceptionSummary `json:"exceptions"`
	Timings     []TimingSummary    `json:"timings"` // time and sql events, slowest total first
	HTTPStatus  map[string]int     `json:"http_status"`
}

// ExceptionSummary counts exceptions of one class.
type ExceptionSummary struct {
	Class       string `json:"class"`
	Count       int    `json:"count"`
	LastMessage string `json:"last_message"`
}

// TimingSummary aggregates the durations recorded under one label.
type TimingSummary struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
	MaxMs   float64 `json:"max_ms"`
}

type capturedEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Origin    string          `json:"origin"`
	Data      json.RawMessage `json:"data"`
}

type timing struct {
	label string
	ms    float64
}

// SummarizeCapture reads a JSON lines capture and aggregates its events.
func SummarizeCapture(r io.Reader) (ReportMetrics, error) {
	var envelopes []capturedEnvelope
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxCaptureLineBytes)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var env capturedEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return ReportMetrics{}, fmt.Errorf("invalid envelope on line %d: %w", lineNum, err)
		}
		envelopes = append(envelopes, env)
	}
	if err := scanner.Err(); err != nil {
		return ReportMetrics{}, fmt.Errorf("read capture failed: %w", err)
	}
	return summarizeEnvelopes(envelopes)
}

func summarizeEnvelopes(envelopes []capturedEnvelope) (ReportMetrics, error) {
	types := make([]string, len(envelopes))
	origins := make([]string, len(envelopes))
	for i, env := range envelopes {
		types[i], origins[i] = env.Type, env.Origin
	}
	metrics := ReportMetrics{
		GeneratedAt: time.Now(),
		EventCount:  len(envelopes),
		EventTypes:  bulk.SliceToCounts(types),
		Origins:     bulk.SliceToCounts(origins),
		HTTPStatus:  map[string]int{},
	}
	if len(envelopes) > 0 {
		metrics.FirstEvent = envelopes[0].Timestamp
		metrics.LastEvent = envelopes[len(envelopes)-1].Timestamp
	}

	var levels []string
	var exceptions []ExceptionBody
	var timings []timing
	for _, env := range envelopes {
		var err error
		switch env.Type {
		case EventLog:
			var body LogBody
			if err = json.Unmarshal(env.Data, &body); err == nil {
				levels = append(levels, string(body.Level))
			}
		case EventException:
			var body ExceptionBody
			if err = json.Unmarshal(env.Data, &body); err == nil {
				exceptions = append(exceptions, body)
			}
		case EventTime:
			var body TimeBody
			if err = json.Unmarshal(env.Data, &body); err == nil {
				timings = append(timings, timing{label: body.Label, ms: body.TimeMs})
			}
		case EventSQL:
			var body struct {
				Query  string  `json:"query"`
				TimeMs float64 `json:"time_ms"`
			}
			if err = json.Unmarshal(env.Data, &body); err == nil {
				timings = append(timings, timing{label: "sql: " + body.Query, ms: body.TimeMs})
			}
		case EventHTTP:
			var body struct {
				Status int    `json:"status"`
				Error  string `json:"error"`
			}
			if err = json.Unmarshal(env.Data, &body); err == nil {
				if body.Error != "" && body.Status == 0 {
					metrics.HTTPStatus["error"]++
				} else {
					metrics.HTTPStatus[strconv.Itoa(body.Status)]++
				}
			}
		}
		if err != nil {
			return metrics, fmt.Errorf("invalid %s event at %s: %w", env.Type, env.Timestamp, err)
		}
	}
	metrics.LogLevels = bulk.SliceToCounts(levels)
	metrics.Exceptions = summarizeExceptions(exceptions)
	metrics.Timings = summarizeTimings(timings)
	return metrics, nil
}

func summarizeExceptions(exceptions []ExceptionBody) []ExceptionSummary {
	byClass := bulk.SliceToGroupsBy(func(e ExceptionBody) string {
		return e.Class
	}, exceptions)
	summaries := make([]ExceptionSummary, 0, len(byClass))
	for class, list := range byClass {
		summaries = append(summaries, ExceptionSummary{
			Class:       class,
			Count:       len(list),
			LastMessage: list[len(list)-1].Message,
		})
	}
	slices.SortFunc(summaries, func(a, b ExceptionSummary) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Class, b.Class)
	})
	return summaries
}

func summarizeTimings(timings []timing) []TimingSummary {
	byLabel := bulk.SliceToGroupsBy(func(t timing) string {
		return t.label
	}, timings)
	summaries := make([]TimingSummary, 0, len(byLabel))
	for label, list := range byLabel {
		s := TimingSummary{Label: label, Count: len(list)}
		for _, t := range list {
			s.TotalMs += t.ms
			s.MaxMs = max(s.MaxMs, t.ms)
		}
		summaries = append(summaries, s)
	}
	slices.SortFunc(summaries, func(a, b TimingSummary) int {
		if c := cmp.Compare(b.TotalMs, a.TotalMs); c != 0 {
			return c
		}
		return strings.Compare(a.Label, b.Label)
	})
	return summaries
}

// WriteJSON writes the metrics as indented JSON, doing nothing when path is empty.
func (m ReportMetrics) WriteJSON(path string) error {
	if path == "" {
		return nil
	}

	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report failed: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write report file failed: %w", err)
	}
	return nil
}

// WriteReportChart renders the metrics to path, the image format is selected by the file extension.
func WriteReportChart(path string, metrics ReportMetrics) error {
	var outputType string
	if strings.HasSuffix(path, ".png") {
		outputType = charts.ChartOutputPNG
	} else if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		outputType = charts.ChartOutputJPG
	} else if strings.HasSuffix(path, ".svg") {
		outputType = charts.ChartOutputSVG
	} else {
		return fmt.Errorf("unhandled chart file type: %s", path)
	}

	if buf, err := RenderReportChart(metrics, outputType); err != nil {
		return fmt.Errorf("render charts failed: %w", err)
	} else if err = os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

// RenderReportChart renders the event overview of metrics in the given charts output format.
func RenderReportChart(metrics ReportMetrics, outputType string) ([]byte, error) {
	if metrics.EventCount == 0 {
		return nil, fmt.Errorf("no events to render")
	}
	painterOpt := charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       768,
	}
	p := charts.NewPainter(painterOpt)
	if chartBox, err := renderReportToPainter(p, metrics); err != nil {
		return nil, err
	} else if chartBox.Height() < p.Height()-128 || chartBox.Height() > p.Height() {
		// re-render with a smaller painter to better fit the charts
		painterOpt.Height = chartBox.Height()
		p = charts.NewPainter(painterOpt)
		if _, err := renderReportToPainter(p, metrics); err != nil {
			return nil, err
		}
	}
	return p.Bytes()
}

// sortedCounts returns the labels and values of counts, largest first.
func sortedCounts(counts map[string]int) ([]string, []float64) {
	labels := slices.Collect(maps.Keys(counts))
	slices.SortFunc(labels, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	values := make([]float64, len(labels))
	for i, l := range labels {
		values[i] = float64(counts[l])
	}
	return labels, values
}

func renderReportToPainter(p *charts.Painter, metrics ReportMetrics) (charts.Box, error) {
	const chartPadding = 10
	resultBox := charts.NewBoxEqual(0)
	resultBox.Right = p.Width()
	p.FilledRect(0, 0, p.Width(), p.Height(), charts.ColorWhite, charts.ColorWhite, 0)
	p = p.Child(charts.PainterPaddingOption(charts.NewBox(0, chartPadding, chartPadding, chartPadding)))

	titleFont := charts.FontStyle{
		FontSize:  16,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	title := strconv.Itoa(metrics.EventCount) + " events"
	if metrics.FirstEvent != "" {
		title += " (" + metrics.FirstEvent + " - " + metrics.LastEvent + ")"
	}
	titleBox := p.MeasureText(title, 0, titleFont)
	// title rendered after the charts to ensure it does not get clipped
	titleBottom := titleBox.Height()
	resultBox.Bottom += titleBottom

	typeLabels, typeValues := sortedCounts(metrics.EventTypes)
	levelLabels, levelValues := sortedCounts(metrics.LogLevels)
	topHeight := 64 + 24*max(len(typeLabels), len(levelLabels))

	painters, err := p.LayoutByRows().
		RowGap(strconv.Itoa(titleBottom)).
		Row().Height(strconv.Itoa(topHeight)).Columns("topLeft", "topRight").
		Row().Columns("bottom"). // single large painter at the bottom with all remaining space
		Build()
	if err != nil {
		return resultBox, fmt.Errorf("error building chart layout: %w", err)
	}
	topLeft := painters["topLeft"]
	topRight := painters["topRight"]
	bottom := painters["bottom"]

	theme := charts.GetTheme(charts.ThemeLight).WithBackgroundColor(charts.ColorTransparent)

	if len(typeLabels) == 0 {
		text := "No Events Recorded"
		textBox := topLeft.MeasureText(text, 0, titleFont)
		topLeft.Text(text, (topLeft.Width()-textBox.Width())/2, topLeft.Height()/2, 0, titleFont)
	} else {
		typeOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{typeValues})
		typeOpt.Theme = theme
		typeOpt.Title.Text = "Events by Type"
		typeOpt.XAxis.Unit = axisUnitForMax(int(slices.Max(typeValues)))
		typeOpt.YAxis.Labels = typeLabels
		typeOpt.SeriesList[0].Label.Show = charts.Ptr(true)
		if err := topLeft.HorizontalBarChart(typeOpt); err != nil {
			return resultBox, fmt.Errorf("error rendering chart: %w", err)
		}
	}

	if len(levelLabels) == 0 {
		text := "No Logs Recorded"
		textBox := topRight.MeasureText(text, 0, titleFont)
		topRight.Text(text, (topRight.Width()-textBox.Width())/2, topRight.Height()/2, 0, titleFont)
	} else {
		levelOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{levelValues})
		levelOpt.Theme = theme.WithSeriesColors([]charts.Color{charts.ColorOrangeAlt1})
		levelOpt.Title.Text = "Logs by Level"
		levelOpt.XAxis.Unit = axisUnitForMax(int(slices.Max(levelValues)))
		levelOpt.YAxis.Labels = levelLabels
		levelOpt.SeriesList[0].Label.Show = charts.Ptr(true)
		if err := topRight.HorizontalBarChart(levelOpt); err != nil {
			return resultBox, fmt.Errorf("error rendering chart: %w", err)
		}
	}
	resultBox.Bottom += max(topLeft.Height(), topRight.Height())

	timings := metrics.Timings
	if len(timings) == 0 {
		text := "No Timings Recorded"
		textBox := bottom.MeasureText(text, 0, titleFont)
		bottom.Text(text, (bottom.Width()-textBox.Width())/2, bottom.Height()/2, 0, titleFont)
		resultBox.Bottom += textBox.Height() * 2
	} else {
		if len(timings) > reportTableMaxRecords {
			timings = timings[:reportTableMaxRecords]
		}
		slowest := timings[0].MaxMs
		for _, t := range timings {
			slowest = max(slowest, t.MaxMs)
		}
		rows := make([][]string, len(timings))
		for i, t := range timings {
			label := t.Label
			if len(label) > 66 {
				label = label[:64] + ".."
			}
			rows[i] = []string{
				label,
				strconv.Itoa(t.Count),
				charts.FormatValueHumanize(t.TotalMs, 1, false),
				charts.FormatValueHumanize(t.MaxMs, 1, false),
			}
		}

		tableTitle := "Slowest Timings (ms)"
		tableTitleFont := charts.FontStyle{
			FontSize:  12,
			FontColor: theme.GetTitleTextColor(),
			Font:      charts.GetDefaultFont(),
		}
		tableTitleBox := bottom.MeasureText(tableTitle, 0, tableTitleFont)
		bottom.Text(tableTitle, 10, tableTitleBox.Height(), 0, tableTitleFont)
		rowColors := []charts.Color{
			{R: 240, G: 240, B: 240, A: 255},
			charts.ColorTransparent,
		}
		if len(rows)%2 == 0 {
			// reverse row colors so table end is opposite of transparent
			rowColors[0], rowColors[1] = rowColors[1], rowColors[0]
		}
		defaultCellFontStyle := charts.FontStyle{
			FontSize:  12,
			FontColor: charts.Color{R: 50, G: 50, B: 50, A: 255},
			Font:      charts.GetDefaultFont(),
		}
		tableOpt := charts.TableChartOption{
			Header:                []string{"Label", "Count", "Total", "Max"},
			Data:                  rows,
			HeaderBackgroundColor: charts.Color{R: 210, G: 210, B: 210, A: 255},
			RowBackgroundColors:   rowColors,
			Padding:               charts.NewBoxEqual(10),
			Spans:                 []int{40, 8, 10, 10},
			TextAligns:            []string{charts.AlignLeft, charts.AlignCenter, charts.AlignRight, charts.AlignRight},
			CellModifier: func(cell charts.TableCell) charts.TableCell {
				if cell.Row == 0 {
					return cell
				}
				cell.FontStyle = defaultCellFontStyle // reset on each call to prevent prior changes persisting
				if cell.Column == 3 && cell.Row-1 < len(timings) {
					switch maxMs := timings[cell.Row-1].MaxMs; {
					case maxMs >= slowest*.8:
						cell.FontStyle.FontColor = redTextColor
					case maxMs >= slowest/2:
						cell.FontStyle.FontColor = orangeTextColor
					default:
						cell.FontStyle.FontColor = greenTextColor
					}
				}
				return cell
			},
		}
		tablePainter := bottom.Child(charts.PainterPaddingOption(charts.NewBox(10, tableTitleBox.Height()+8, 0, 0)))
		if err := tablePainter.TableChart(tableOpt); err != nil {
			return resultBox, fmt.Errorf("error rendering table: %w", err)
		}
		// render again only to measure, the table height is not returned by TableChart
		tableOpt.Width = bottom.Width()
		if tp, _ := charts.TableOptionRenderDirect(tableOpt); tp != nil {
			resultBox.Bottom += tableTitleBox.Height() + tp.Height()
		} else {
			resultBox.Bottom += bottom.Height()
		}
	}

	p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
	return resultBox, nil
}

func axisUnitForMax(val int) float64 {
	if val >= 8000 {
		return 2000
	} else if val > 2000 {
		return 1000
	} else if val >= 800 {
		return 200
	} else if val > 200 {
		return 100
	} else if val >= 80 {
		return 20
	} else if val > 20 {
		return 10
	} else if val >= 10 {
		return 2
	}
	return 1
}
