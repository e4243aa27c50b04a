package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docrag/internal/domain"
	"docrag/internal/session"
)

// ChatPort is the TUI-facing subset of a document session.
type ChatPort interface {
	Ask(ctx context.Context, query string) (*session.Answer, error)
	LoadFile(ctx context.Context, path string) (*session.LoadResult, error)
	Reset()
}

// Model is the Bubble Tea model for the document chat.
type Model struct {
	chat      ChatPort
	ctx       context.Context
	input     textinput.Model
	viewport  viewport.Model
	answer    *session.Answer
	document  string
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a model for an already loaded document. loaded may be nil.
func New(ctx context.Context, chat ChatPort, loaded *session.LoadResult) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the document, :load <path> or :reset"
	ti.Focus()
	ti.CharLimit = 0
	m := Model{chat: chat, ctx: ctx, input: ti, viewport: viewport.New(0, 0), status: "No document loaded. Use :load <path>."}
	if loaded != nil {
		m.setLoaded(loaded)
	}
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentHit())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				break
			}
			m.input.SetValue("")
			m.handleLine(line)
			m.viewport.SetContent(m.renderCurrentHit())
			return m, nil
		case "down":
			if m.hitCount() > 0 {
				m.cursor = (m.cursor + 1) % m.hitCount()
				m.viewport.SetContent(m.renderCurrentHit())
				return m, nil
			}
		case "up":
			if m.hitCount() > 0 {
				m.cursor = (m.cursor - 1 + m.hitCount()) % m.hitCount()
				m.viewport.SetContent(m.renderCurrentHit())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleLine(line string) {
	switch {
	case line == ":reset":
		m.chat.Reset()
		m.answer, m.document, m.summary, m.cursor = nil, "", "", 0
		m.status = "Document removed. Use :load <path>."
	case strings.HasPrefix(line, ":load"):
		path := strings.TrimSpace(strings.TrimPrefix(line, ":load"))
		if path == "" {
			m.status = "Usage: :load <path>"
			return
		}
		res, err := m.chat.LoadFile(m.ctx, path)
		if err != nil {
			m.answer, m.document, m.summary = nil, "", ""
			m.status = "Load failed: " + err.Error()
			return
		}
		m.setLoaded(res)
	default:
		ans, err := m.chat.Ask(m.ctx, line)
		m.cursor = 0
		m.lastQuery = line
		switch {
		case errors.Is(err, domain.ErrNotBuilt):
			m.answer = nil
			m.status = "No document loaded. Use :load <path>."
		case err != nil:
			m.answer = nil
			m.status = "Error: " + err.Error()
		case ans.Empty:
			m.answer = ans
			m.status = fmt.Sprintf("No relevant passages for %q", line)
		default:
			m.answer = ans
			m.status = fmt.Sprintf("%d passages for %q (%d context tokens)", len(ans.Hits), line, ans.ContextTokens)
		}
	}
}

func (m *Model) setLoaded(res *session.LoadResult) {
	m.answer, m.cursor = nil, 0
	m.document = res.Document.Name
	if res.Document.Title != "" && res.Document.Title != res.Document.Name {
		m.document = fmt.Sprintf("%s (%s)", res.Document.Title, res.Document.Name)
	}
	m.summary = res.Summary
	m.status = fmt.Sprintf("Loaded %s: %d chunks. Ask a question.", res.Document.Name, res.Chunks)
}

func (m Model) hitCount() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Hits)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Document Chat"
	if m.document != "" {
		title += " - " + m.document
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentHit() string {
	if m.answer == nil {
		return "No results yet."
	}
	if m.answer.Empty {
		return "Nothing in the document scored above the similarity threshold."
	}
	h := m.answer.Hits[m.cursor]
	title := fmt.Sprintf("Passage %d/%d  chunk #%d  score=%.3f", m.cursor+1, len(m.answer.Hits), h.Position, h.Score)
	return title + "\n\n" + highlightBestSentence(h.Text, m.lastQuery)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// highlightBestSentence emphasises the sentence sharing the most distinct
// words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
