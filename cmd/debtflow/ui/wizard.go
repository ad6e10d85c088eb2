package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"debtflow/internal/api"
	"debtflow/internal/gateway"
	"debtflow/internal/session"
	"debtflow/internal/submit"
	"debtflow/internal/wizard"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of *session.Controller the wizard screen drives.
type Controller interface {
	Machine() *wizard.Machine
	State() wizard.State
	Wallets() []api.Wallet
	PixKeys() []api.PixKey
	Next() wizard.Result
	Prev()
	SelectWallet(id string)
	ChoosePix()
	ChooseGateway(ctx context.Context) (wizard.ConnectionStatus, error)
	Connect(ctx context.Context) (gateway.Authorization, error)
	AwaitGatewayReturn(ctx context.Context) (gateway.Reconciliation, error)
	Submit(ctx context.Context) (session.Outcome, error)
	CreateAnyway(ctx context.Context) (session.Outcome, error)
	CancelDuplicate() bool
	Pending() ([]api.DuplicateCandidate, bool)
	Discard(ctx context.Context)
}

var _ Controller = (*session.Controller)(nil)

// Notifications forwards session notifications to the screen. Notify never
// blocks; when the buffer is full the notification is dropped.
type Notifications struct {
	ch chan session.Notification
}

func NewNotifications(buffer int) *Notifications {
	return &Notifications{ch: make(chan session.Notification, buffer)}
}

func (n *Notifications) Notify(x session.Notification) {
	select {
	case n.ch <- x:
	default:
	}
}

func (n *Notifications) wait() tea.Cmd {
	return func() tea.Msg { return notifyMsg(<-n.ch) }
}

// Messages produced by background commands.
type (
	notifyMsg        session.Notification
	gatewayCheckMsg  struct{ err error }
	connectMsg       struct{ auth gateway.Authorization; err error }
	gatewayReturnMsg struct{ rec gateway.Reconciliation; err error }
	submitMsg        struct{ out session.Outcome; err error }
)

const maxNotes = 3

// Model is the wizard screen.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	notes  *Notifications
	me     submit.Party
	styles Styles

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	focus      int
	busy       string
	validation string
	fieldErr   string
	authURL    string
	log        []session.Notification
	width      int

	rendered *renderCache
}

type renderCache struct {
	md    string
	width int
	out   string
}

// NewModel builds the screen. ctx bounds every background call; the caller
// owns Open and Close on the controller.
func NewModel(ctx context.Context, ctrl Controller, notes *Notifications, me submit.Party, styles Styles) Model {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.CharLimit = 200
	ti.Width = 48
	ti.PromptStyle = styles.Cursor
	ti.TextStyle = styles.Body
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		notes:    notes,
		me:       me,
		styles:   styles,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 14),
		width:    80,
		rendered: &renderCache{},
	}
	m.syncInput()
	m.refreshViewport()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.notes != nil {
		cmds = append(cmds, m.notes.wait())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	next.refreshViewport()
	return next, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-34, 16)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-12, 6)
		return m, nil

	case spinner.TickMsg:
		if m.busy != "" {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case notifyMsg:
		m.log = append(m.log, session.Notification(msg))
		if len(m.log) > maxNotes {
			m.log = m.log[len(m.log)-maxNotes:]
		}
		return m, m.notes.wait()

	case gatewayCheckMsg:
		m.busy = ""
		if msg.err != nil {
			m.validation = "Could not check the gateway connection: " + msg.err.Error()
		}
		return m, nil

	case connectMsg:
		if msg.err != nil {
			m.busy = ""
			m.validation = msg.err.Error()
			return m, nil
		}
		m.authURL = msg.auth.URL
		m.busy = "Waiting for the gateway to send you back"
		return m, m.awaitReturn()

	case gatewayReturnMsg:
		m.busy = ""
		m.authURL = ""
		if msg.err != nil && m.ctx.Err() == nil {
			m.validation = msg.err.Error()
		}
		m.focus = 0
		m.syncInput()
		return m, nil

	case submitMsg:
		m.busy = ""
		m.focus = 0
		switch {
		case msg.err != nil:
			m.validation = msg.err.Error()
		case !msg.out.Validation.OK && msg.out.Validation.Message != "":
			m.validation = msg.out.Validation.Message
		default:
			m.validation = ""
		}
		m.syncInput()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.commit()
		return m, tea.Quit
	}
	if m.busy != "" {
		return m, nil
	}

	if m.paused() {
		switch msg.String() {
		case "enter", "y":
			return m.startBusy("Creating", m.createAnyway())
		case "esc", "n":
			m.ctrl.CancelDuplicate()
			m.validation = ""
			m.syncInput()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	spec, hasField := m.focused()
	switch msg.Type {
	case tea.KeyEsc:
		m.commit()
		m.ctrl.Prev()
		m.focus = 0
		m.validation = ""
		m.syncInput()
		return m, nil

	case tea.KeyTab, tea.KeyDown:
		m.moveFocus(1)
		return m, nil

	case tea.KeyShiftTab, tea.KeyUp:
		m.moveFocus(-1)
		return m, nil

	case tea.KeyCtrlD:
		m.ctrl.Discard(m.ctx)
		m.focus = 0
		m.validation = ""
		m.syncInput()
		return m, nil

	case tea.KeyCtrlG:
		st := m.ctrl.State()
		if st.Selections.MethodKind() == wizard.MethodGateway && st.Gateway.Status != wizard.StatusConnected {
			m.commit()
			return m.startBusy("Starting gateway authorization", m.connect())
		}
		return m, nil

	case tea.KeyEnter:
		return m.advance()

	case tea.KeyLeft, tea.KeyRight:
		if hasField && spec.Kind == wizard.InputChoice {
			delta := 1
			if msg.Type == tea.KeyLeft {
				delta = -1
			}
			return m.cycle(spec, delta)
		}

	case tea.KeySpace:
		if hasField && spec.Kind == wizard.InputToggle {
			cur, _ := strconv.ParseBool(m.ctrl.State().FieldValue(spec.Field))
			m.setField(spec.Field, strconv.FormatBool(!cur))
			return m, nil
		}
	}

	if hasField && spec.Kind == wizard.InputText {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if m.ctrl.State().IsTerminal() {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// advance commits the focused field, then moves focus forward, then the
// step forward, then submits on the confirmation step.
func (m Model) advance() (Model, tea.Cmd) {
	if !m.commit() {
		return m, nil
	}
	fields := m.fields()
	if m.focus < len(fields)-1 {
		m.moveFocus(1)
		return m, nil
	}

	if m.ctrl.State().IsTerminal() {
		return m.startBusy("Submitting", m.submit())
	}

	res := m.ctrl.Next()
	if !res.OK {
		m.validation = res.Message
		m.focusField(res.Field)
		return m, nil
	}
	m.validation = ""
	m.focus = 0
	m.syncInput()
	return m, nil
}

func (m Model) cycle(spec wizard.FieldSpec, delta int) (Model, tea.Cmd) {
	values, _ := m.options(spec)
	if len(values) == 0 {
		return m, nil
	}
	cur := m.ctrl.State().FieldValue(spec.Field)
	idx := -1
	for i, v := range values {
		if v == cur {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && delta < 0:
		idx = len(values) - 1
	case idx < 0:
		idx = 0
	default:
		idx = (idx + delta + len(values)) % len(values)
	}
	next := values[idx]

	m.validation = ""
	switch spec.Field {
	case wizard.FieldWallet:
		m.ctrl.SelectWallet(next)
	case wizard.FieldPaymentMethod:
		if wizard.MethodKind(next) == wizard.MethodGateway {
			return m.startBusy("Checking gateway connection", m.chooseGateway())
		}
		m.ctrl.ChoosePix()
	default:
		m.setField(spec.Field, next)
	}
	return m, nil
}

func (m *Model) setField(f wizard.Field, value string) bool {
	if err := m.ctrl.Machine().SetField(f, value); err != nil {
		m.fieldErr = err.Error()
		return false
	}
	m.fieldErr = ""
	return true
}

// commit writes the text input to the focused field when it changed.
func (m *Model) commit() bool {
	spec, ok := m.focused()
	if !ok || spec.Kind != wizard.InputText {
		return true
	}
	v := strings.TrimSpace(m.input.Value())
	if v == m.ctrl.State().FieldValue(spec.Field) {
		m.fieldErr = ""
		return true
	}
	return m.setField(spec.Field, v)
}

func (m *Model) moveFocus(delta int) {
	if !m.commit() {
		return
	}
	n := len(m.fields())
	if n == 0 {
		return
	}
	m.focus = (m.focus + delta + n) % n
	m.syncInput()
}

func (m *Model) focusField(f wizard.Field) {
	for i, spec := range m.fields() {
		if spec.Field == f {
			m.focus = i
			break
		}
	}
	m.syncInput()
}

// syncInput clamps focus to the visible fields and loads the focused text
// field into the input.
func (m *Model) syncInput() {
	fields := m.fields()
	if m.focus >= len(fields) {
		m.focus = max(len(fields)-1, 0)
	}
	m.fieldErr = ""
	spec, ok := m.focused()
	if !ok || spec.Kind != wizard.InputText {
		m.input.SetValue("")
		return
	}
	m.input.Placeholder = spec.Label
	m.input.SetValue(m.ctrl.State().FieldValue(spec.Field))
	m.input.CursorEnd()
}

func (m Model) fields() []wizard.FieldSpec {
	st := m.ctrl.State()
	return wizard.StepAt(st.Step).VisibleFields(st)
}

func (m Model) focused() (wizard.FieldSpec, bool) {
	fields := m.fields()
	if m.focus < 0 || m.focus >= len(fields) {
		return wizard.FieldSpec{}, false
	}
	return fields[m.focus], true
}

func (m Model) paused() bool {
	_, ok := m.ctrl.Pending()
	return ok
}

// options returns the values and display labels for a choice field.
func (m Model) options(spec wizard.FieldSpec) (values, labels []string) {
	switch spec.Field {
	case wizard.FieldWallet:
		for _, w := range m.ctrl.Wallets() {
			values = append(values, w.ID)
			labels = append(labels, w.Name)
		}
		return values, labels
	case wizard.FieldPixKeyID:
		for _, k := range m.ctrl.PixKeys() {
			values = append(values, k.ID)
			labels = append(labels, fmt.Sprintf("%s (%s)", k.Key, k.Type))
		}
		return values, labels
	}
	return spec.Options, spec.Options
}

func (m Model) startBusy(label string, cmd tea.Cmd) (Model, tea.Cmd) {
	m.busy = label
	m.validation = ""
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m Model) chooseGateway() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		_, err := ctrl.ChooseGateway(ctx)
		return gatewayCheckMsg{err: err}
	}
}

func (m Model) connect() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		auth, err := ctrl.Connect(ctx)
		return connectMsg{auth: auth, err: err}
	}
}

func (m Model) awaitReturn() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		rec, err := ctrl.AwaitGatewayReturn(ctx)
		return gatewayReturnMsg{rec: rec, err: err}
	}
}

func (m Model) submit() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		out, err := ctrl.Submit(ctx)
		return submitMsg{out: out, err: err}
	}
}

func (m Model) createAnyway() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		out, err := ctrl.CreateAnyway(ctx)
		return submitMsg{out: out, err: err}
	}
}

// =============================================================================
// VIEW
// =============================================================================

func (m Model) View() string {
	st := m.ctrl.State()
	step := wizard.StepAt(st.Step)
	s := m.styles

	var b strings.Builder
	b.WriteString(s.Header.Render("debtflow · new movement"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  %s\n", s.RenderProgress(st.Step, wizard.StepCount),
		s.Muted.Render(fmt.Sprintf("step %d of %d", st.Step+1, wizard.StepCount)))
	b.WriteString(s.Title.Render(step.Title(st)))
	b.WriteString("\n")

	switch {
	case m.paused():
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(s.Warning.Render("enter: create anyway   esc: go back and review"))
		b.WriteString("\n")

	case st.IsTerminal():
		b.WriteString(m.viewport.View())
		b.WriteString("\n")

	default:
		for i, spec := range m.fields() {
			b.WriteString(m.renderField(i, spec, st))
			b.WriteString("\n")
		}
		if st.Selections.MethodKind() == wizard.MethodGateway {
			b.WriteString("\n")
			b.WriteString(m.renderGateway(st))
			b.WriteString("\n")
		}
	}

	if m.busy != "" {
		fmt.Fprintf(&b, "\n%s %s\n", m.spinner.View(), s.Muted.Render(m.busy+"..."))
	}
	if m.authURL != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", s.Info.Render("Open this address to authorize the gateway:"), s.Bold.Render(m.authURL))
	}
	if m.fieldErr != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Error.Render(m.fieldErr))
	}
	if m.validation != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Error.Render(m.validation))
	}
	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, n := range m.log {
			b.WriteString(m.renderNote(n))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(s.RenderDivider(min(m.width, 80)))
	b.WriteString("\n")
	b.WriteString(s.Footer.Render(m.help(st)))
	return b.String()
}

func (m Model) renderField(i int, spec wizard.FieldSpec, st wizard.State) string {
	s := m.styles
	marker := "  "
	if i == m.focus {
		marker = s.Cursor.Render("▸ ")
	}
	label := spec.Label
	if spec.Optional {
		label += " (optional)"
	}
	line := marker + s.Label.Render(label)

	switch spec.Kind {
	case wizard.InputText:
		if i == m.focus {
			return line + m.input.View()
		}
		v := st.FieldValue(spec.Field)
		if v == "" || v == "0" {
			return line + s.Muted.Render("-")
		}
		return line + s.Body.Render(v)

	case wizard.InputToggle:
		box := "[ ]"
		if v, _ := strconv.ParseBool(st.FieldValue(spec.Field)); v {
			box = "[x]"
		}
		return line + s.Selected.Render(box)

	case wizard.InputChoice:
		values, labels := m.options(spec)
		if len(values) == 0 {
			return line + s.Muted.Render("no options available")
		}
		cur := st.FieldValue(spec.Field)
		parts := make([]string, len(values))
		for j, v := range values {
			if v == cur {
				parts[j] = s.Selected.Render("[" + labels[j] + "]")
			} else {
				parts[j] = s.Muted.Render(labels[j])
			}
		}
		return line + strings.Join(parts, " ")
	}
	return line
}

func (m Model) renderGateway(st wizard.State) string {
	s := m.styles
	switch st.Gateway.Status {
	case wizard.StatusConnected:
		return s.Success.Render("Gateway account connected")
	case wizard.StatusChecking:
		return s.Muted.Render("Checking gateway account...")
	case wizard.StatusDisconnected:
		return s.Warning.Render("Gateway account not connected. Press ctrl+g to connect.")
	}
	return s.Muted.Render("Gateway status unknown. Press ctrl+g to connect.")
}

func (m Model) renderNote(n session.Notification) string {
	s := m.styles
	switch n.Level {
	case session.LevelSuccess:
		return s.Success.Render("✓ ") + s.Body.Render(n.Message)
	case session.LevelError:
		return s.Error.Render("✗ ") + s.Body.Render(n.Message)
	}
	return s.Info.Render("• ") + s.Body.Render(n.Message)
}

// refreshViewport loads the summary or the duplicate list into the viewport.
// Glamour output is reused while the markdown and width are unchanged.
func (m *Model) refreshViewport() {
	var md string
	st := m.ctrl.State()
	if candidates, ok := m.ctrl.Pending(); ok {
		md = DuplicatesMarkdown(candidates)
	} else if st.IsTerminal() {
		md = Summary{State: st, Me: m.me, Wallets: m.ctrl.Wallets(), PixKeys: m.ctrl.PixKeys()}.Markdown()
	} else {
		return
	}
	c := m.rendered
	if md != c.md || m.viewport.Width != c.width {
		out, err := Render(md, m.viewport.Width)
		if err != nil {
			m.fieldErr = "summary rendering failed: " + err.Error()
		}
		c.md, c.width, c.out = md, m.viewport.Width, out
		m.viewport.SetContent(out)
	}
}

func (m Model) help(st wizard.State) string {
	switch {
	case m.paused():
		return "enter create anyway • esc review • ctrl+c quit"
	case st.IsTerminal():
		return "enter submit • esc back • ctrl+d discard • ctrl+c quit"
	}
	return "enter next • tab/↑↓ field • ←→ choose • space toggle • esc back • ctrl+d discard • ctrl+c quit"
}
