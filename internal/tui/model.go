// Package tui provides the Bubble Tea practice interface.
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tuispeak/internal/generator"
	"github.com/verte-zerg/tuispeak/internal/lesson"
	"github.com/verte-zerg/tuispeak/internal/model"
	"github.com/verte-zerg/tuispeak/internal/speech"
	statsPkg "github.com/verte-zerg/tuispeak/internal/stats"
	"github.com/verte-zerg/tuispeak/internal/textmatch"
)

// Sessions is the part of the session controller the screen drives.
type Sessions interface {
	StartSession(target string, opts speech.SessionOptions) error
	StopSession()
	Abandon()
}

// History persists attempts and the practice position.
type History interface {
	InsertAttempt(ctx context.Context, a model.Attempt, words []model.WordStats) (int64, error)
	ListAttempts(ctx context.Context, cfg model.StatsConfig) ([]model.AttemptAggregate, error)
	GetWeakWords(ctx context.Context, window int, lesson string) ([]model.WordAggregate, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ResultPublisher forwards results to other services.
type ResultPublisher interface {
	Publish(ctx context.Context, r speech.Result) error
}

// Typist accepts typed answers in place of speech.
type Typist interface {
	Submit(text string) error
}

// Deps are the collaborators of the practice screen. Publisher and Typist
// are optional.
type Deps struct {
	Sessions  Sessions
	Bridge    *Bridge
	History   History
	Publisher ResultPublisher
	Typist    Typist
	Generator *generator.Generator
	Log       *slog.Logger
}

type phase int

const (
	phaseReady phase = iota
	phaseListening
	phaseResult
	phaseNothing
	phaseError
)

const publishTimeout = 2 * time.Second

// Model implements the Bubble Tea practice UI.
type Model struct {
	config model.Config
	deps   Deps
	log    *slog.Logger
	lesson lesson.Lesson

	queue           []string
	pos             int
	target          string
	weakSet         map[string]struct{}
	weakNoticeShown bool

	width  int
	height int

	phase       phase
	state       speech.State
	transcript  string
	timerTotal  int
	remaining   int
	timerActive bool
	result      speech.Result
	errMsg      string
	notice      string

	progress progress.Model
	input    textinput.Model

	hasLast  bool
	lastAcc  int
	allAcc   float64
	attempts int
}

var (
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	heardStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	matchedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	nearStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	missedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Underline(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	liveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Italic(true)
	scoreStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs the practice model for one lesson.
func NewModel(cfg model.Config, l lesson.Lesson, deps Deps, weakSet map[string]struct{}) *Model {
	log := deps.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Generator == nil {
		deps.Generator = generator.New()
	}
	input := textinput.New()
	input.Placeholder = "type what you would say"
	input.Prompt = "› "
	m := &Model{
		config:   cfg,
		deps:     deps,
		log:      log,
		lesson:   l,
		weakSet:  weakSet,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		input:    input,
	}
	m.loadPosition()
	m.advance()
	m.loadFooterStats()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.deps.Bridge.wait()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case transcriptMsg:
		if m.phase == phaseListening {
			m.transcript = msg.text
		}
		return m, m.deps.Bridge.wait()
	case tickMsg:
		m.remaining = msg.remaining
		m.timerActive = msg.active
		if msg.active && msg.remaining > m.timerTotal {
			m.timerTotal = msg.remaining
		}
		return m, m.deps.Bridge.wait()
	case stateMsg:
		m.state = msg.state
		if msg.state == speech.StateIdle && m.phase == phaseListening {
			m.phase = phaseNothing
			m.input.Blur()
		}
		return m, m.deps.Bridge.wait()
	case resultMsg:
		m.handleResult(msg.result)
		return m, m.deps.Bridge.wait()
	case fatalMsg:
		m.phase = phaseError
		m.errMsg = describeFatal(msg.kind)
		m.input.Blur()
		return m, m.deps.Bridge.wait()
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.deps.Sessions.Abandon()
		return m, tea.Quit
	}
	if m.phase == phaseListening {
		return m.handleListeningKey(msg)
	}
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "enter", " ":
		if m.phase == phaseResult {
			m.advance()
		}
		return m, m.start()
	case "r":
		return m, m.start()
	case "n", "tab", "right":
		m.advance()
		m.phase = phaseReady
		return m, nil
	case "t":
		m.config.Timed = !m.config.Timed
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListeningKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.deps.Sessions.Abandon()
		m.phase = phaseReady
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		if m.deps.Typist != nil {
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				if err := m.deps.Typist.Submit(text); err != nil {
					m.log.Warn("typed answer rejected", "error", err)
				}
			}
		}
		m.deps.Sessions.StopSession()
		return m, nil
	}
	if m.deps.Typist != nil {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if msg.Type == tea.KeySpace {
		m.deps.Sessions.StopSession()
	}
	return m, nil
}

func (m *Model) start() tea.Cmd {
	if m.target == "" {
		return nil
	}
	opts := speech.SessionOptions{Timed: m.config.Timed}
	if err := m.deps.Sessions.StartSession(m.target, opts); err != nil {
		m.phase = phaseError
		m.errMsg = fmt.Sprintf("Could not start: %v", err)
		return nil
	}
	m.phase = phaseListening
	m.transcript = ""
	m.result = speech.Result{}
	m.errMsg = ""
	m.timerTotal = 0
	m.remaining = 0
	m.timerActive = false
	if m.deps.Typist == nil {
		return nil
	}
	m.input.Reset()
	return m.input.Focus()
}

func (m *Model) handleResult(r speech.Result) {
	m.result = r
	m.phase = phaseResult
	m.input.Blur()
	m.notice = ""

	attempt := model.Attempt{
		SessionID:  r.SessionID,
		LessonID:   m.lesson.ID,
		Target:     r.Target,
		Transcript: r.Transcript,
		Accuracy:   r.Accuracy,
		Confidence: r.Confidence,
		Timed:      r.Timed,
		Restarts:   r.Restarts,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
	ctx := context.Background()
	if _, err := m.deps.History.InsertAttempt(ctx, attempt, statsPkg.WordStatsFromReview(r.Words)); err != nil {
		m.log.Error("failed to save attempt", "session_id", r.SessionID, "error", err)
		m.notice = "attempt not saved"
	}
	if m.deps.Publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := m.deps.Publisher.Publish(pctx, r); err != nil {
			m.log.Warn("failed to publish result", "session_id", r.SessionID, "error", err)
		}
		cancel()
	}

	m.attempts++
	m.allAcc += (float64(r.Accuracy) - m.allAcc) / float64(m.attempts)
	m.lastAcc = r.Accuracy
	m.hasLast = true

	if m.config.FocusWeak {
		m.refreshWeakSet()
	}
}

func positionKey(lessonID string) string {
	return "position/" + lessonID
}

func (m *Model) loadPosition() {
	if m.config.Order != model.OrderSequential {
		return
	}
	v, ok, err := m.deps.History.Get(context.Background(), positionKey(m.lesson.ID))
	if err != nil {
		m.log.Warn("failed to load lesson position", "lesson", m.lesson.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	if pos, err := strconv.Atoi(v); err == nil {
		m.pos = pos
	}
}

// advance picks the next sentence according to the configured order.
func (m *Model) advance() {
	sentences := m.lesson.Sentences
	gen := m.deps.Generator
	switch {
	case m.config.FocusWeak && len(m.weakSet) > 0:
		m.target = gen.PickWeighted(sentences, m.weakSet, m.config.WeakFactor)
	case m.config.Order == model.OrderShuffle:
		if len(m.queue) == 0 {
			m.queue = gen.Shuffle(sentences)
		}
		if len(m.queue) > 0 {
			m.target, m.queue = m.queue[0], m.queue[1:]
		}
	case m.config.Order == model.OrderSequential:
		shown := 0
		if len(sentences) > 0 && m.pos > 0 {
			shown = m.pos % len(sentences)
		}
		m.target, m.pos = gen.Sequential(sentences, m.pos)
		// Store the shown index so a restart resumes on the same sentence.
		if err := m.deps.History.Set(context.Background(), positionKey(m.lesson.ID), strconv.Itoa(shown), 0); err != nil {
			m.log.Warn("failed to save lesson position", "lesson", m.lesson.ID, "error", err)
		}
	default:
		m.target = gen.Pick(sentences, m.target)
	}
	m.transcript = ""
}

func (m *Model) loadFooterStats() {
	attempts, err := m.deps.History.ListAttempts(context.Background(), model.StatsConfig{Lesson: m.lesson.ID})
	if err != nil {
		m.log.Warn("failed to load attempt stats", "lesson", m.lesson.ID, "error", err)
		return
	}
	if len(attempts) == 0 {
		return
	}
	s := statsPkg.Summarize(attempts)
	m.attempts = s.Attempts
	m.allAcc = s.AvgAccuracy
	m.lastAcc = attempts[len(attempts)-1].Accuracy
	m.hasLast = true
}

func (m *Model) refreshWeakSet() {
	aggs, err := m.deps.History.GetWeakWords(context.Background(), m.config.WeakWindow, "")
	if err != nil {
		m.log.Warn("failed to load weak words", "error", err)
		return
	}
	m.weakSet = statsPkg.SelectWeakWords(aggs, m.config.WeakTop)
	if len(m.weakSet) == 0 && !m.weakNoticeShown {
		m.notice = "no weak words yet; using normal order"
		m.weakNoticeShown = true
	}
}

func describeFatal(kind speech.ErrorKind) string {
	switch kind {
	case speech.KindNotAllowed, speech.KindServiceNotAllowed:
		return "Microphone access denied. Check the capture device permissions."
	case speech.KindUnsupported:
		return "Speech recognition is not available with the configured engine."
	case speech.KindInsecureContext:
		return "The recognizer refused an insecure connection."
	case speech.KindAudioCapture:
		return "No audio capture device found."
	default:
		return fmt.Sprintf("Recognition failed: %s.", kind)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.target == "" {
		return "Lesson has no sentences."
	}
	contentWidth := 0
	if m.width > 0 {
		contentWidth = int(float64(m.width) * 0.70)
		if contentWidth < 1 {
			contentWidth = 1
		}
	}
	blocks := []string{m.renderHeader(), "", m.renderSentence(contentWidth), ""}
	if line := m.renderStatus(contentWidth); line != "" {
		blocks = append(blocks, line, "")
	}
	blocks = append(blocks, footerStyle.Render(m.renderHint()))
	content := lipgloss.JoinVertical(lipgloss.Center, blocks...)
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	footer := m.renderFooter()
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderHeader() string {
	mode := "untimed"
	if m.config.Timed {
		mode = "timed"
	}
	parts := []string{m.lesson.Title, mode}
	if m.phase == phaseListening {
		parts = append(parts, m.state.String())
	}
	return headerStyle.Render(strings.Join(parts, " · "))
}

func (m *Model) renderSentence(width int) string {
	var states []wordState
	switch m.phase {
	case phaseListening:
		states = fieldStates(m.target, liveStates(m.target, m.transcript))
	case phaseResult:
		states = fieldStates(m.target, reviewStates(m.result.Words))
	}
	return wrapStyledRunes(buildStyledRunes(m.target, states), width)
}

func (m *Model) renderStatus(width int) string {
	switch m.phase {
	case phaseListening:
		var lines []string
		if m.timerActive && m.timerTotal > 0 {
			barWidth := 30
			if width > 0 && width < barWidth+6 {
				barWidth = width - 6
			}
			m.progress.Width = barWidth
			ratio := float64(m.remaining) / float64(m.timerTotal)
			lines = append(lines, fmt.Sprintf("%s %2ds", m.progress.ViewAs(ratio), m.remaining))
		}
		if m.deps.Typist != nil {
			lines = append(lines, m.input.View())
		} else if m.transcript != "" {
			lines = append(lines, liveStyle.Render(m.transcript))
		} else {
			lines = append(lines, footerStyle.Render("listening…"))
		}
		return strings.Join(lines, "\n")
	case phaseResult:
		return m.renderResult()
	case phaseNothing:
		return errorStyle.Render("Nothing heard. Press enter to try again.")
	case phaseError:
		return errorStyle.Render(m.errMsg)
	}
	return ""
}

func (m *Model) renderResult() string {
	r := m.result
	lines := []string{
		scoreStyle.Render(fmt.Sprintf("Accuracy %d%% · %s · Confidence %d%%", r.Accuracy, r.Grade(), r.Confidence)),
		liveStyle.Render(fmt.Sprintf("Heard: %q", r.Transcript)),
	}
	var near, missed []string
	for _, w := range r.Words {
		switch w.Status {
		case textmatch.WordNear:
			near = append(near, fmt.Sprintf("%s (heard %s)", w.Word, w.Heard))
		case textmatch.WordMissed:
			missed = append(missed, w.Word)
		}
	}
	if len(near) > 0 {
		lines = append(lines, nearStyle.Render("Close: "+strings.Join(near, ", ")))
	}
	if len(missed) > 0 {
		lines = append(lines, missedStyle.UnsetUnderline().Render("Missed: "+strings.Join(missed, ", ")))
	}
	if m.notice != "" {
		lines = append(lines, errorStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHint() string {
	switch m.phase {
	case phaseListening:
		if m.deps.Typist != nil {
			return "enter submit · esc cancel"
		}
		return "speak now · enter stop · esc cancel"
	case phaseResult:
		return "enter next · r repeat · t timed on/off · q quit"
	default:
		return "enter start · n next · t timed on/off · q quit"
	}
}

func (m *Model) renderFooter() string {
	segments := []string{fmt.Sprintf("Attempts %d", m.attempts)}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %d%%", m.lastAcc))
		segments = append(segments, fmt.Sprintf("Avg %.1f%%", m.allAcc))
	}
	if len(m.weakSet) > 0 {
		segments = append(segments, fmt.Sprintf("Weak words %d", len(m.weakSet)))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}
