package main

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yitech/barfeed/model/bar"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	bullStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	bearStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	wickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	axisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
)

// ── messages ──────────────────────────────────────────────────────────────────

// historyMsg carries the bars returned by GetBars.
type historyMsg struct {
	bars   []bar.Bar
	noData bool
	err    error
}

// barMsg carries one live update.
type barMsg struct{ b bar.Bar }

// statusMsg reports stream trouble without ending the program.
type statusMsg struct{ err error }

// ── model ─────────────────────────────────────────────────────────────────────

type model struct {
	ticker     string
	resolution string
	nBars      int
	history    tea.Cmd
	updates    <-chan tea.Msg

	bars   []bar.Bar
	noData bool
	err    error
	width  int
	height int
}

func newModel(ticker, resolution string, nBars int, history tea.Cmd, updates <-chan tea.Msg) model {
	return model{
		ticker:     ticker,
		resolution: resolution,
		nBars:      nBars,
		history:    history,
		updates:    updates,
	}
}

// ── Init / Update / View ──────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return tea.Batch(m.history, waitForUpdate(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case historyMsg:
		m.err = msg.err
		m.noData = msg.noData
		for _, b := range msg.bars {
			m.addOrUpdate(b)
		}
		return m, nil

	case barMsg:
		m.err = nil
		m.addOrUpdate(msg.b)
		return m, waitForUpdate(m.updates)

	case statusMsg:
		m.err = msg.err
		return m, waitForUpdate(m.updates)
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "connecting…"
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderChart())
	b.WriteByte('\n')
	footer := footerStyle.Render("[q] quit")
	if m.err != nil {
		footer += "  " + errorStyle.Render(m.err.Error())
	}
	b.WriteString(footer)
	return b.String()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// addOrUpdate inserts b by time, replacing a bar with the same time, and
// keeps the newest nBars.
func (m *model) addOrUpdate(b bar.Bar) {
	i, found := slices.BinarySearchFunc(m.bars, b.Time, func(x bar.Bar, t int64) int {
		return cmp.Compare(x.Time, t)
	})
	if found {
		m.bars[i] = b
	} else {
		m.bars = slices.Insert(m.bars, i, b)
	}
	if len(m.bars) > m.nBars {
		m.bars = m.bars[len(m.bars)-m.nBars:]
	}
	m.noData = false
}

// ── header ────────────────────────────────────────────────────────────────────

func (m model) renderHeader() string {
	if len(m.bars) == 0 {
		state := "waiting for data…"
		if m.noData {
			state = "no data in range"
		}
		return headerStyle.Render(fmt.Sprintf("%s  %s  %s", m.ticker, m.resolution, state))
	}
	b := m.bars[len(m.bars)-1]
	return headerStyle.Render(fmt.Sprintf(
		"%s  %s  O:%.2f  H:%.2f  L:%.2f  C:%.2f  V:%.4g  %d/%d",
		m.ticker, m.resolution,
		b.Open, b.High, b.Low, b.Close, b.Volume,
		len(m.bars), m.nBars,
	))
}

// ── chart ─────────────────────────────────────────────────────────────────────

const yAxisWidth = 11 // "  12345.67 │"

func (m model) renderChart() string {
	// header + x-axis + time labels + footer
	chartH := m.height - 4
	if chartH < 3 {
		chartH = 3
	}

	bars := m.bars
	maxCols := (m.width - yAxisWidth) / 2 // 2 chars per bar
	if maxCols < 1 {
		maxCols = 1
	}
	if len(bars) > maxCols {
		bars = bars[len(bars)-maxCols:]
	}

	hi, lo := priceRange(bars)
	if hi == lo {
		hi = lo + 1
	}

	cols := len(bars) * 2
	grid := make([][]string, chartH)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	for i, b := range bars {
		renderBar(grid, b, i*2, chartH, hi, lo)
	}

	var sb strings.Builder
	for row := 0; row < chartH; row++ {
		sb.WriteString(axisStyle.Render(fmt.Sprintf("%9.2f │", rowToPrice(row, chartH, hi, lo))))
		sb.WriteString(strings.Join(grid[row], ""))
		sb.WriteByte('\n')
	}

	sb.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth+cols)))
	sb.WriteByte('\n')

	sb.WriteString(strings.Repeat(" ", yAxisWidth))
	sb.WriteString(timeLabels(bars, timeLayout(m.resolution)))
	sb.WriteByte('\n')

	return sb.String()
}

// timeLayout picks a label format that fits the resolution.
func timeLayout(res string) string {
	switch res {
	case "D", "1D", "W", "1W", "M", "1M", "12M":
		return "01/02"
	default:
		return "15:04"
	}
}

// timeLabels writes one 5-char label every 5 bars (10 columns).
func timeLabels(bars []bar.Bar, layout string) string {
	cols := len(bars) * 2
	line := []rune(strings.Repeat(" ", cols))
	for i := 0; i < len(bars); i += 5 {
		label := []rune(time.UnixMilli(bars[i].Time).UTC().Format(layout))
		for j, r := range label {
			if i*2+j < cols {
				line[i*2+j] = r
			}
		}
	}
	return axisStyle.Render(string(line))
}

// renderBar paints one bar into the grid at column x (0-indexed, 2 wide).
func renderBar(grid [][]string, b bar.Bar, x, chartH int, hi, lo float64) {
	style := bullStyle
	if b.Close < b.Open {
		style = bearStyle
	}

	fH := float64(chartH)
	bodyTop := priceToRow(math.Max(b.Open, b.Close), fH, hi, lo)
	bodyBot := priceToRow(math.Min(b.Open, b.Close), fH, hi, lo)
	wickTop := priceToRow(b.High, fH, hi, lo)
	wickBot := priceToRow(b.Low, fH, hi, lo)

	for row := 0; row < chartH; row++ {
		left, right := " ", " "
		switch {
		case row >= bodyTop && row <= bodyBot:
			left = style.Render("█")
			right = style.Render("█")
		case row >= wickTop && row <= wickBot:
			left = wickStyle.Render("│")
		}
		if x < len(grid[row]) {
			grid[row][x] = left
		}
		if x+1 < len(grid[row]) {
			grid[row][x+1] = right
		}
	}
}

// priceToRow converts a price to a grid row (0 = top = high).
func priceToRow(price, chartH float64, hi, lo float64) int {
	if hi == lo {
		return int(chartH) / 2
	}
	r := int(math.Round((hi - price) / (hi - lo) * (chartH - 1)))
	if r < 0 {
		r = 0
	}
	if r >= int(chartH) {
		r = int(chartH) - 1
	}
	return r
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, chartH int, hi, lo float64) float64 {
	if chartH <= 1 {
		return hi
	}
	return hi - float64(row)/float64(chartH-1)*(hi-lo)
}

// priceRange returns the overall high and low across bars.
func priceRange(bars []bar.Bar) (hi, lo float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	hi, lo = -math.MaxFloat64, math.MaxFloat64
	for _, b := range bars {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}
