// Package statsui provides the Bubble Tea stats interface.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tuispeak/internal/model"
	"github.com/verte-zerg/tuispeak/internal/stats"
	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

const (
	tabOverview = iota
	tabWordTable
	tabWordCurves
)

const topWords = 5

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Store is the attempt history the stats screen reads.
type Store interface {
	stats.Source
	ListWordStatsForAttempts(ctx context.Context, attemptIDs []int64, words []string) (map[int64]map[string]model.WordStats, error)
}

// Model implements the Bubble Tea stats UI.
type Model struct {
	store Store
	cfg   model.StatsConfig

	report     stats.Report
	errMsg     string
	wordErrMsg string

	tabs       []string
	activeTab  int
	viewports  []viewport.Model
	wordTable  table.Model
	wordLayout tableLayout

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	wordSelection       []string
	wordSelectionCustom bool
	wordPerAttempt      map[int64]map[string]model.WordStats

	wordInputMode bool
	wordInput     textinput.Model
}

type tableLayout struct {
	width    int
	height   int
	rowCount int
}

// NewModel constructs a stats UI model.
func NewModel(st Store, cfg model.StatsConfig) *Model {
	m := &Model{
		store: st,
		cfg:   cfg,
		tabs:  []string{"Overview", "Word Table", "Word Curves"},
	}
	m.wordSelection = parseWords(cfg.Words)
	if len(m.wordSelection) > 0 {
		m.wordSelectionCustom = true
	}
	m.initInputs()
	m.wordInput = newFilterInput("Words: ")
	m.wordInput.Placeholder = "water, birds"
	m.wordTable = newWordTable()
	m.initViewports()
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.wordInputMode {
			return m.updateWordInput(msg)
		}
		if m.activeTab == tabWordTable {
			m.wordTable.Focus()
		} else {
			m.wordTable.Blur()
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.refreshReport()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.refreshReport()
			return m, nil
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabWordCurves {
				return m.startWordInput()
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabWordTable {
				m.wordTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabWordTable {
				m.wordTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabWordTable {
				var cmd tea.Cmd
				m.wordTable, cmd = m.wordTable.Update(msg)
				return m, cmd
			}
			var cmd tea.Cmd
			m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.wordInputMode {
		return fitLines(m.renderWordModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Lesson: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(strings.TrimSpace(m.cfg.Lesson))
	m.filterInputs[1].SetValue("")
	if m.cfg.Since != nil {
		m.filterInputs[1].SetValue(m.cfg.Since.Format("2006-01-02"))
	}
	m.filterInputs[2].SetValue("")
	if m.cfg.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(m.cfg.Last))
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.setWordTableSize(m.width, bodyHeight)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
	promptWidth := lipgloss.Width(m.wordInput.Prompt)
	m.wordInput.Width = max(10, modalInnerWidth(m.width)-promptWidth)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabWordTable {
		m.wordTable.Focus()
	} else {
		m.wordTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	filters := padLines(m.renderFilterSummary(), m.width)
	return tabs + "\n" + filters
}

func (m *Model) renderFilterSummary() string {
	lesson := m.cfg.Lesson
	if lesson == "" {
		lesson = "any"
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Settings: lesson=%s  since=%s  last=%s  window=%d", lesson, since, last, m.cfg.CurveWindow)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabWordCurves {
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Edit words: enter  Window: -/=  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabWordTable {
		switch {
		case len(m.report.Attempts) == 0:
			return fitLines("No attempts found.", m.width, height)
		case len(m.report.WordAggsWindow) == 0:
			return fitLines("No word stats found.", m.width, height)
		default:
			return fitLines(tableMutedStyle.Render(m.wordTable.View()), m.width, height)
		}
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.renderTabContents()
		return
	}
	m.errMsg = ""
	m.report = report
	if !m.wordSelectionCustom {
		m.wordSelection = stats.TopWordsByFrequency(m.report.WordAggsAll, topWords)
	}
	m.loadWordPerAttempt()
	m.wordTable.SetRows(wordTableRows(m.report.WordAggsWindow))
	m.wordLayout.rowCount = len(m.report.WordAggsWindow)
	m.updateLayout()
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load stats.")
		}
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report.Attempts, m.cfg.CurveWindow, width))
	m.viewports[tabWordCurves].SetContent(renderWordCurves(m.report.Attempts, m.wordSelection, m.wordPerAttempt, m.cfg.CurveWindow, width, m.wordErrMsg))
}

func renderOverview(attempts []model.AttemptAggregate, window, width int) string {
	if len(attempts) == 0 {
		return "No attempts found."
	}
	summary := renderSummaryCards(attempts, width)
	var buf bytes.Buffer
	if err := stats.RenderCurves(&buf, attempts, window, stats.ChartWidthFor(width)); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(attempts []model.AttemptAggregate, width int) string {
	s := stats.Summarize(attempts)
	cards := []string{
		metricCard("Attempts", strconv.Itoa(s.Attempts)),
		metricCard("Avg Accuracy", fmt.Sprintf("%.1f%%", s.AvgAccuracy)),
		metricCard("Best Accuracy", fmt.Sprintf("%d%%", s.BestAccuracy)),
		metricCard("Avg Confidence", fmt.Sprintf("%.1f%%", s.AvgConfidence)),
		metricCard("Excellent", strconv.Itoa(s.Excellent)),
		metricCard("Practice", s.Practice.Round(time.Second).String()),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4], cards[5])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func wordTableColumns() []table.Column {
	return []table.Column{
		{Title: "Word", Width: 16},
		{Title: "Accuracy", Width: 9},
		{Title: "Matched", Width: 7},
		{Title: "Near", Width: 5},
		{Title: "Missed", Width: 6},
		{Title: "Total", Width: 6},
	}
}

func newWordTable() table.Model {
	t := table.New(
		table.WithColumns(wordTableColumns()),
		table.WithHeight(1),
	)
	t.SetStyles(wordTableStyles())
	return t
}

// wordTableRows lists words weakest first; ties go to the more frequent word.
func wordTableRows(aggs []model.WordAggregate) []table.Row {
	sorted := append([]model.WordAggregate(nil), aggs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := stats.WordAccuracy(sorted[i]), stats.WordAccuracy(sorted[j])
		if ai != aj {
			return ai < aj
		}
		if sorted[i].Total() != sorted[j].Total() {
			return sorted[i].Total() > sorted[j].Total()
		}
		return sorted[i].Word < sorted[j].Word
	})
	rows := make([]table.Row, 0, len(sorted))
	for _, agg := range sorted {
		rows = append(rows, table.Row{
			agg.Word,
			fmt.Sprintf("%.1f%%", stats.WordAccuracy(agg)*100),
			strconv.Itoa(agg.Matched),
			strconv.Itoa(agg.Near),
			strconv.Itoa(agg.Missed),
			strconv.Itoa(agg.Total()),
		})
	}
	return rows
}

func wordTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) setWordTableSize(width, height int) {
	viewportHeight := max(1, height-1)
	if m.wordLayout.width == width && m.wordLayout.height == viewportHeight {
		return
	}
	m.wordLayout.width = width
	m.wordLayout.height = viewportHeight
	m.wordTable.SetWidth(width)
	m.wordTable.SetHeight(viewportHeight)
	// The header border takes extra lines; shrink until the view fits.
	for i := 0; i < 2; i++ {
		over := lipgloss.Height(m.wordTable.View()) - height
		if over <= 0 {
			break
		}
		m.wordTable.SetHeight(max(1, m.wordTable.Height()-over))
	}
}

func renderWordCurves(attempts []model.AttemptAggregate, words []string, perAttempt map[int64]map[string]model.WordStats, window, width int, errMsg string) string {
	if len(attempts) == 0 {
		return "No attempts found."
	}
	if errMsg != "" {
		return fmt.Sprintf("Failed to load word curves: %s", errMsg)
	}
	if len(words) == 0 {
		return "No words selected. Press Enter to set words."
	}
	header := headerStyle.Render(fmt.Sprintf("Words: %s", strings.Join(words, ", ")))
	var buf bytes.Buffer
	if err := stats.RenderWordCurves(&buf, attempts, perAttempt, words, window, stats.ChartWidthFor(width)); err != nil {
		return fmt.Sprintf("Failed to render word curves: %v", err)
	}
	if buf.Len() == 0 {
		return header + "\nNo attempts include the selected words."
	}
	return strings.TrimRight(header+"\n"+buf.String(), "\n")
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) startWordInput() (tea.Model, tea.Cmd) {
	m.wordInputMode = true
	m.wordInput.SetValue(strings.Join(m.wordSelection, ", "))
	return m, m.wordInput.Focus()
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) updateWordInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.wordInputMode = false
		m.wordInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.applyWordInput()
		m.wordInputMode = false
		m.wordInput.Blur()
		m.loadWordPerAttempt()
		m.renderTabContents()
		return m, nil
	}
	var cmd tea.Cmd
	m.wordInput, cmd = m.wordInput.Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	lesson := strings.TrimSpace(m.filterInputs[0].Value())
	sinceInput := strings.TrimSpace(m.filterInputs[1].Value())
	var since *time.Time
	if sinceInput != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sinceInput, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	lastInput := strings.TrimSpace(m.filterInputs[2].Value())
	last := 0
	if lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	window := m.cfg.CurveWindow
	if windowInput := strings.TrimSpace(m.filterInputs[3].Value()); windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}

	m.cfg.Lesson = lesson
	m.cfg.Since = since
	m.cfg.Last = last
	m.cfg.CurveWindow = window
	return nil
}

func (m *Model) applyWordInput() {
	words := parseWords(m.wordInput.Value())
	if len(words) == 0 {
		m.wordSelectionCustom = false
		m.wordSelection = stats.TopWordsByFrequency(m.report.WordAggsAll, topWords)
		return
	}
	m.wordSelectionCustom = true
	m.wordSelection = words
}

func (m *Model) renderWordModal() string {
	body := []string{
		cardValueStyle.Render("Select Words"),
		m.wordInput.View(),
		headerStyle.Render("Separate words with commas or spaces. Empty resets to the most practiced."),
		headerStyle.Render("Enter to apply / Esc to cancel"),
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) loadWordPerAttempt() {
	m.wordErrMsg = ""
	m.wordPerAttempt = nil
	if len(m.report.Attempts) == 0 || len(m.wordSelection) == 0 {
		return
	}
	ids := make([]int64, len(m.report.Attempts))
	for i, a := range m.report.Attempts {
		ids[i] = a.AttemptID
	}
	perAttempt, err := m.store.ListWordStatsForAttempts(context.Background(), ids, m.wordSelection)
	if err != nil {
		m.wordErrMsg = err.Error()
		return
	}
	m.wordPerAttempt = perAttempt
}

// parseWords splits a word list on commas and whitespace and normalizes each
// entry the way attempts are scored. Duplicates are dropped.
func parseWords(input string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, w := range textmatch.Tokenize(strings.ReplaceAll(input, ",", " ")) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return ((n / 5) + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func modalWidth(width int) int {
	return max(40, min(width-4, 80))
}

func modalInnerWidth(width int) int {
	w := modalWidth(width) - 6 // 2 border + 4 padding
	if w < 10 {
		return 10
	}
	return w
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
