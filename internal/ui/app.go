// internal/ui/app.go
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/sirupsen/logrus"

	"avatar/internal/api"
	"avatar/internal/chat"
	"avatar/internal/commands"
	"avatar/internal/config"
	"avatar/internal/db"
	"avatar/internal/export"
	"avatar/internal/logger"
	"avatar/internal/rates"
	"avatar/internal/status"
	"avatar/internal/typewriter"
	"avatar/internal/ws"
)

// Messages delivered into the update loop, either from tea.Cmd results or
// from background callbacks via the event channel.
type (
	connEventMsg  struct{ state string }
	wsPayloadMsg  map[string]any
	wsErrorMsg    struct{ err error }
	revealMsg     struct{ key, prefix string }
	revealDoneMsg struct{ key string }
	chatResultMsg struct{ result *api.ChatResult }
	chatErrorMsg  struct{ err error }
	rateMsg       float64
)

// Deps carries the externally-constructed services the app depends on.
type Deps struct {
	Config *config.Config
	Client *api.Client
	Store  *db.Store // optional
	Rates  *rates.Service
}

type Model struct {
	cfg    *config.Config
	client *api.Client
	store  *db.Store
	rates  *rates.Service
	log    *logrus.Entry

	timeline *chat.Timeline
	agg      *chat.Aggregator
	registry *chat.Registry
	sched    *typewriter.Scheduler
	signaler *status.Signaler
	tracker  *status.Tracker
	conn     *ws.Manager

	vp       viewport.Model
	input    textinput.Model
	renderer *glamour.TermRenderer

	events *eventQueue

	width, height int
	ready         bool
	mode          string // single or group
	connState     string // idle, connected, reconnecting, offline
	pending       bool   // REST request in flight
	rate          float64

	// In-flight group turn state.
	groupID         string
	currentProvider string
	currentName     string
	partial         string
	displayed       map[string]string // typewriter job key -> revealed prefix
}

func New(deps Deps) (Model, error) {
	input := textinput.New()
	input.Placeholder = "Type a message, /help for commands"
	input.Focus()
	input.CharLimit = 4000

	m := Model{
		cfg:       deps.Config,
		client:    deps.Client,
		store:     deps.Store,
		rates:     deps.Rates,
		log:       logger.WithComponent("ui"),
		timeline:  chat.NewTimeline(deps.Config.DedupeWindow()),
		agg:       chat.NewAggregator(deps.Config.DedupeWindow()),
		registry:  chat.NewRegistry(deps.Config),
		signaler:  status.NewSignaler(),
		input:     input,
		events:    newEventQueue(),
		mode:      deps.Config.ChatMode,
		connState: "idle",
		rate:      deps.Rates.Current(),
		displayed: make(map[string]string),
	}
	m.tracker = status.NewTracker(m.signaler)

	m.sched = typewriter.NewScheduler(deps.Config.TypewriterTick(),
		func(id, prefix string) { m.post(revealMsg{key: id, prefix: prefix}) },
		func(id string) { m.post(revealDoneMsg{key: id}) },
	)

	conn, err := ws.NewManager(deps.Config.Server.BaseURL, ws.Callbacks{
		OnConnect:    func() { m.post(connEventMsg{state: "connected"}) },
		OnDisconnect: func(reconnecting bool) {
			state := "idle"
			if reconnecting {
				state = "reconnecting"
			}
			m.post(connEventMsg{state: state})
		},
		OnMessage:    func(payload map[string]any) { m.post(wsPayloadMsg(payload)) },
		OnError:      func(err error) { m.post(wsErrorMsg{err: err}) },
	}, ws.Options{
		MaxAttempts: deps.Config.Reconnect.MaxAttempts,
		BaseDelay:   deps.Config.ReconnectBaseDelay(),
	})
	if err != nil {
		return Model{}, err
	}
	m.conn = conn

	if deps.Store != nil {
		m.loadGroupSettings()
		history, err := deps.Store.History()
		if err != nil {
			m.log.WithError(err).Warn("failed to load history")
		}
		for _, msg := range history {
			m.timeline.Append(msg)
		}
	}

	return m, nil
}

// post hands a message to the update loop. It never blocks the caller and
// preserves the order messages were posted in.
func (m Model) post(msg tea.Msg) {
	m.events.push(msg)
}

func (m Model) waitEvent() tea.Msg {
	return m.events.pop()
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitEvent, m.fetchRate(false)}
	if m.mode == "group" {
		m.conn.Connect()
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.shutdown()
			return m, tea.Quit
		case "enter":
			return m.submit()
		default:
			var cmds []tea.Cmd
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
			m.vp, cmd = m.vp.Update(msg)
			cmds = append(cmds, cmd)
			return m, tea.Batch(cmds...)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case connEventMsg:
		// A stale teardown event must not clobber a Connect issued right
		// after the Disconnect, as /reconnect does.
		if msg.state != "idle" || m.conn.State() == ws.StateClosed {
			m.connState = msg.state
		}
		if msg.state == "connected" {
			m.initializeGroupChat()
		}
		m.refresh()
		return m, m.waitEvent

	case wsPayloadMsg:
		m = m.handlePayload(msg)
		m.refresh()
		return m, m.waitEvent

	case wsErrorMsg:
		m = m.handleConnError(msg.err)
		m.refresh()
		return m, m.waitEvent

	case revealMsg:
		m.displayed[msg.key] = msg.prefix
		m.refresh()
		return m, m.waitEvent

	case revealDoneMsg:
		delete(m.displayed, msg.key)
		m.refresh()
		return m, m.waitEvent

	case chatResultMsg:
		m.pending = false
		m = m.handleResult(msg.result)
		m.refresh()
		return m, nil

	case chatErrorMsg:
		m.pending = false
		m.appendError(errorText(msg.err))
		m.refresh()
		return m, nil

	case rateMsg:
		m.rate = float64(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := 3
	vpHeight := msg.Height - headerHeight - statusHeight - inputHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.vp = viewport.New(msg.Width, vpHeight)
		m.vp.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.vp.Width = msg.Width
		m.vp.Height = vpHeight
	}
	m.input.Width = msg.Width - 6

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(msg.Width-4),
	)
	if err != nil {
		m.log.WithError(err).Warn("markdown renderer unavailable")
	} else {
		m.renderer = renderer
	}

	m.refresh()
	return m
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.SetValue("")

	if cmd := commands.Parse(text); cmd != nil {
		return m.runCommand(cmd)
	}

	if m.pending {
		m.appendSystem("Still waiting for the previous reply.")
		m.refresh()
		return m, nil
	}
	if m.mode == "group" && m.connState == "reconnecting" {
		// Hold messages instead of silently rerouting them over REST
		// while the socket is between attempts.
		m.input.SetValue(text)
		m.appendSystem("Reconnecting to the group chat; your message was not sent.")
		m.refresh()
		return m, nil
	}

	msg, ok := m.timeline.Append(chat.Message{Role: chat.RoleUser, Content: text})
	if !ok {
		// Duplicate submission inside the dedup window.
		return m, nil
	}
	m.persist(msg)
	m.refresh()

	if m.mode == "group" && m.conn.IsConnected() {
		if err := m.conn.SendUserMessage(text); err != nil {
			m.appendError(err.Error())
			m.refresh()
		}
		return m, nil
	}

	m.pending = true
	return m, m.sendChat(text)
}

func (m Model) runCommand(cmd commands.Command) (tea.Model, tea.Cmd) {
	switch c := cmd.(type) {
	case commands.Help:
		m.appendSystem(commands.HelpText())

	case commands.Clear:
		m.sched.CancelAll()
		for k := range m.displayed {
			delete(m.displayed, k)
		}
		m.timeline.Clear()
		m.agg.Reset()
		m.signaler.AllComplete()
		m.groupID = ""
		m.partial = ""
		if m.store != nil {
			if err := m.store.ClearHistory(); err != nil {
				m.log.WithError(err).Warn("failed to clear history")
			}
		}

	case commands.SetMode:
		m.mode = c.Mode
		m.cfg.ChatMode = c.Mode
		m.saveGroupSettings()
		if c.Mode == "group" {
			m.conn.Connect()
		} else {
			m.conn.Disconnect()
			m.connState = "idle"
		}
		m.appendSystem("Chat mode: " + c.Mode)

	case commands.ListProviders:
		var sb strings.Builder
		sb.WriteString("Group providers:")
		for _, p := range m.registry.All() {
			sb.WriteString("\n  " + p.Name + " (" + p.Provider + ")")
		}
		if m.registry.Count() == 0 {
			sb.WriteString(" none configured")
		}
		m.appendSystem(sb.String())

	case commands.ShowRate:
		if c.Force {
			m.refresh()
			return m, m.fetchRate(true)
		}
		m.appendSystem(fmt.Sprintf("USD/CNY rate: %.4f", m.rates.Current()))

	case commands.Reconnect:
		m.conn.Disconnect()
		m.connState = "reconnecting"
		m.conn.Connect()

	case commands.ShowHistory:
		if m.store == nil {
			m.appendSystem("No local store configured.")
			break
		}
		history, err := m.store.History()
		if err != nil {
			m.appendError("Failed to load history: " + err.Error())
			break
		}
		m.appendSystem(fmt.Sprintf("%d messages persisted locally.", len(history)))

	case commands.Export:
		messages := m.timeline.Messages()
		if len(messages) == 0 {
			m.appendSystem("Nothing to export.")
			break
		}
		baseDir, err := os.UserHomeDir()
		if err != nil {
			baseDir = "."
		}
		path, err := export.WriteConversation(messages, filepath.Join(baseDir, ".avatar"))
		if err != nil {
			m.appendError("Export failed: " + err.Error())
			break
		}
		m.appendSystem("Exported to " + path)

	case commands.Quit:
		m.shutdown()
		m.refresh()
		return m, tea.Quit

	case commands.ParseError:
		m.appendError(c.Message)
	}

	m.refresh()
	return m, nil
}

// handlePayload routes one inbound frame. Frame types follow the backend's
// group-chat stream: provider_thinking, provider_start, content chunks,
// provider_end, end/done, error.
func (m Model) handlePayload(payload map[string]any) Model {
	switch payloadType(payload) {
	case "provider_thinking":
		m.currentProvider = stringAt(payload, "provider")
		m.currentName = firstString(payload, "ai_name", "aiName")
		m.signaler.Thinking(m.currentProvider, m.currentName, intAt(payload, "index"), totalAt(payload))

	case "provider_start":
		m.currentProvider = firstString(payload, "provider", "ai_name")
		m.currentName = firstString(payload, "ai_name", "provider")
		m.partial = ""
		if m.groupID == "" {
			container := m.timeline.NewGroupContainer()
			m.groupID = container.ID
		}
		m.signaler.ProviderStart(m.currentProvider, m.currentName, intAt(payload, "index"), totalAt(payload))

	case "provider_end":
		m = m.finishProvider(payload)

	case "end":
		m = m.finishTurn()

	case "error":
		m.appendError(firstString(payload, "error", "detail"))

	default:
		if chunk := stringAt(payload, "content"); chunk != "" {
			m.partial += chunk
		}
	}
	return m
}

func (m Model) finishProvider(payload map[string]any) Model {
	content := stringAt(payload, "content")
	if content == "" {
		content = strings.TrimSpace(m.partial)
	}
	if content == "" {
		return m
	}

	raw := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		raw[k] = v
	}
	raw["content"] = content
	if raw["provider"] == nil {
		raw["provider"] = m.currentProvider
	}
	if raw["ai_name"] == nil && raw["aiName"] == nil {
		raw["ai_name"] = m.currentName
	}

	index := intAt(payload, "index")
	before := m.agg.Len()
	snapshot := m.agg.Ingest(raw)
	if m.agg.Len() == before {
		// Duplicate delivery, nothing changed.
		return m
	}

	if m.groupID == "" {
		container := m.timeline.NewGroupContainer()
		m.groupID = container.ID
	}
	m.timeline.SetResponses(m.groupID, snapshot)

	provider := stringAt(raw, "provider")
	key := jobKey(m.groupID, provider)
	m.displayed[key] = ""
	m.sched.Start(key, content, m.cfg.TypewriterTick(),
		time.Duration(index)*m.cfg.TypewriterStagger())

	m.signaler.ProviderEnd()
	m.partial = ""
	return m
}

func (m Model) finishTurn() Model {
	m.signaler.AllComplete()
	if m.groupID != "" {
		for _, msg := range m.timeline.Messages() {
			if msg.ID == m.groupID {
				m.persist(msg)
				break
			}
		}
	}
	m.agg.Reset()
	m.groupID = ""
	m.partial = ""
	return m
}

func (m Model) handleResult(result *api.ChatResult) Model {
	if result.Group {
		container := m.timeline.NewGroupContainer()
		var responses []chat.ProviderResponse
		for _, r := range result.Responses {
			r.Complete = true
			responses = append(responses, r)
		}
		m.timeline.SetResponses(container.ID, responses)
		for i, r := range responses {
			key := jobKey(container.ID, r.Provider)
			m.displayed[key] = ""
			m.sched.Start(key, r.Content, m.cfg.TypewriterTick(),
				time.Duration(i)*m.cfg.TypewriterStagger())
		}
		for _, msg := range m.timeline.Messages() {
			if msg.ID == container.ID {
				m.persist(msg)
				break
			}
		}
		return m
	}

	msg, ok := m.timeline.Append(chat.Message{
		Role:     chat.RoleAssistant,
		Content:  result.Content,
		Provider: result.Provider,
		Model:    result.Model,
	})
	if ok {
		m.persist(msg)
		key := jobKey(msg.ID, result.Provider)
		m.displayed[key] = ""
		m.sched.Start(key, result.Content, m.cfg.TypewriterTick(), 0)
	}
	return m
}

func (m Model) handleConnError(err error) Model {
	if errors.Is(err, ws.ErrMaxReconnect) {
		m.connState = "offline"
		m.appendError("Connection lost and could not be restored. Use /reconnect to try again.")
		return m
	}
	m.log.WithError(err).Warn("connection error")
	return m
}

func (m Model) initializeGroupChat() {
	var models []ws.ModelInfo
	for _, p := range m.registry.All() {
		models = append(models, ws.ModelInfo{ID: p.ID, Name: p.Name, Provider: p.Provider})
	}
	err := m.conn.InitializeGroupChat(models, ws.SystemPrompts{
		Mode:   m.cfg.Group.ReplyStrategy,
		Prompt: m.cfg.Group.SystemPrompt,
	})
	if err != nil {
		m.log.WithError(err).Warn("group chat initialization failed")
	}
}

func (m Model) sendChat(content string) tea.Cmd {
	req := api.ChatRequest{
		Content:  content,
		Role:     "user",
		Provider: m.cfg.Provider,
		Model:    m.cfg.Model,
		ChatMode: m.mode,
	}
	if m.mode == "group" {
		settings := &api.GroupSettings{
			ReplyStrategy: m.cfg.Group.ReplyStrategy,
			SystemPrompt:  m.cfg.Group.SystemPrompt,
		}
		for _, p := range m.registry.All() {
			settings.SelectedProviders = append(settings.SelectedProviders,
				api.SelectedProvider{Provider: p.Provider, ModelID: p.ModelID})
		}
		req.GroupSettings = settings
	}
	client := m.client
	return func() tea.Msg {
		result, err := client.SendMessage(context.Background(), req)
		if err != nil {
			return chatErrorMsg{err: err}
		}
		return chatResultMsg{result: result}
	}
}

func (m Model) fetchRate(force bool) tea.Cmd {
	svc := m.rates
	return func() tea.Msg {
		if force {
			return rateMsg(svc.ForceUpdate(context.Background()))
		}
		return rateMsg(svc.Rate(context.Background()))
	}
}

func (m Model) appendSystem(content string) {
	m.timeline.Append(chat.Message{Role: chat.RoleAssistant, Provider: "system", Content: content})
}

func (m Model) appendError(content string) {
	m.timeline.Append(chat.Message{Role: chat.RoleAssistant, Content: content, IsError: true})
}

// groupSettingsBlob is the persisted user-level group-chat selection, stored
// as an opaque JSON value under the groupChatSettings key.
type groupSettingsBlob struct {
	Mode          string                 `json:"mode"`
	ReplyStrategy string                 `json:"replyStrategy"`
	Providers     []config.GroupProvider `json:"providers"`
}

// loadGroupSettings overlays the persisted group selection onto the config
// and rebuilds the registry from it.
func (m *Model) loadGroupSettings() {
	raw, err := m.store.GetSetting("groupChatSettings")
	if err != nil || raw == "" {
		return
	}
	var blob groupSettingsBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		m.log.WithError(err).Warn("ignoring malformed group settings")
		return
	}
	if blob.Mode == "single" || blob.Mode == "group" {
		m.mode = blob.Mode
		m.cfg.ChatMode = blob.Mode
	}
	if blob.ReplyStrategy != "" {
		m.cfg.Group.ReplyStrategy = blob.ReplyStrategy
	}
	if len(blob.Providers) > 0 {
		m.cfg.Group.Providers = blob.Providers
	}
	m.registry = chat.NewRegistry(m.cfg)
}

func (m Model) saveGroupSettings() {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(groupSettingsBlob{
		Mode:          m.mode,
		ReplyStrategy: m.cfg.Group.ReplyStrategy,
		Providers:     m.cfg.Group.Providers,
	})
	if err != nil {
		return
	}
	if err := m.store.SetSetting("groupChatSettings", string(raw)); err != nil {
		m.log.WithError(err).Warn("failed to persist group settings")
	}
}

func (m Model) persist(msg chat.Message) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveMessage(msg); err != nil {
		m.log.WithError(err).Warn("failed to persist message")
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.vp.SetContent(renderTimeline(m.timeline.Messages(), m.displayed, m.renderer))
	m.vp.GotoBottom()
}

func (m Model) shutdown() {
	m.sched.CancelAll()
	m.conn.Disconnect()
}

func errorText(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// inputLocked reports whether submissions are blocked: a REST request is in
// flight, or the group socket is between reconnect attempts.
func (m Model) inputLocked() bool {
	return m.pending || (m.mode == "group" && m.connState == "reconnecting")
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := fmt.Sprintf("%s  %s  %s  %s",
		TitleStyle.Render("AVATAR"),
		DimStyle.Render("mode: "+m.mode),
		renderConnState(m.connState),
		DimStyle.Render(fmt.Sprintf("¥%.2f/USD", m.rate)))

	statusLine := renderStatusLine(m.tracker)
	if statusLine == "" && m.pending {
		statusLine = SystemStyle.Render("Sending...")
	}

	inputBox := InputBox
	if m.inputLocked() {
		inputBox = DisabledInputBox
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		header,
		m.vp.View(),
		statusLine,
		inputBox.Width(m.width-2).Render(m.input.View()))
}

// Payload field helpers. The backend's field names vary between snake_case
// and camelCase, so every read goes through a fallback list.

func payloadType(payload map[string]any) string {
	if done, ok := payload["done"].(bool); ok && done {
		return "end"
	}
	return stringAt(payload, "type")
}

func stringAt(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringAt(payload, key); s != "" {
			return s
		}
	}
	return ""
}

func intAt(payload map[string]any, key string) int {
	f, _ := payload[key].(float64)
	return int(f)
}

func totalAt(payload map[string]any) int {
	if t := intAt(payload, "total"); t > 0 {
		return t
	}
	return 1
}
