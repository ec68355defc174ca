// Package tui is the terminal inventory client: register or sign in, browse
// and search the owner's records, add, edit and delete them, and download the
// PDF report. The list reloads itself when the server reports a change.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/rl1809/easy-inventory/internal/client"
	"github.com/rl1809/easy-inventory/internal/core/domain"
)

const (
	requestTimeout   = 15 * time.Second
	streamRetryDelay = 5 * time.Second
)

// API is the subset of the HTTP client the terminal client uses.
type API interface {
	Register(ctx context.Context, username, email, password string) (client.Account, error)
	SignIn(ctx context.Context, username, password string) (client.Session, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
	ListRecords(ctx context.Context, q domain.ListQuery) ([]client.Record, error)
	GetRecord(ctx context.Context, id string) (client.Record, error)
	CreateRecord(ctx context.Context, form domain.RecordForm, photo *domain.PhotoUpload, idempotencyKey string) (client.Record, error)
	UpdateRecord(ctx context.Context, id string, form domain.RecordForm, photo *domain.PhotoUpload, version int) (client.Record, error)
	DeleteRecord(ctx context.Context, id string) error
	DownloadReport(ctx context.Context, dir string) (string, error)
	Subscribe(ctx context.Context) (<-chan domain.InventoryEvent, error)
}

type Mode int

const (
	ModeLogin Mode = iota
	ModeList
	ModeDetail
	ModeConfirmDelete
	ModeRegister
	ModeResetPassword
	ModeForm
)

// Field positions in the fieldSets below.
const (
	regUsername = iota
	regEmail
	regPassword
)

const (
	resetEmail = iota
	resetToken
	resetPassword
)

const (
	formName = iota
	formQuantity
	formPrice
	formPhoto
)

var sortCycle = []domain.SortKey{domain.SortByName, domain.SortByQuantity, domain.SortByPrice}

type Model struct {
	api         API
	downloadDir string

	mode      Mode
	prevMode  Mode
	authState domain.AuthState
	account   client.Account

	username textinput.Model
	password textinput.Model

	register  fieldSet
	reset     fieldSet
	resetSent bool

	// form is the add/edit screen; editing is zero when adding.
	form      fieldSet
	editing   domain.InventoryRecord
	submitKey string
	saving    bool

	// The change stream belongs to one sign-in; streamGen discards messages
	// from streams of earlier sessions.
	streamCtx  context.Context
	stopStream context.CancelFunc
	streamGen  int
	events     <-chan domain.InventoryEvent
	live       bool

	search    textinput.Model
	searching bool
	query     domain.ListQuery
	records   []domain.InventoryRecord
	visible   []domain.InventoryRecord
	table     table.Model
	selected  domain.InventoryRecord
	confirm   confirmDialog

	status string
	err    error
	width  int
	height int
}

func New(api API, downloadDir string) Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	search := textinput.New()
	search.Placeholder = "search by name"
	search.Prompt = "/ "

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 28},
			{Title: "Quantity", Width: 10},
			{Title: "Price", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(colorText).
		Background(colorPrimary)
	t.SetStyles(styles)

	return Model{
		api:         api,
		downloadDir: downloadDir,
		mode:        ModeLogin,
		authState:   domain.AuthStateIdle,
		username:    username,
		password:    password,
		search:      search,
		query:       domain.ListQuery{SortBy: domain.SortByName, Order: domain.Ascending},
		table:       t,
	}
}

func (m Model) Mode() Mode                  { return m.mode }
func (m Model) AuthState() domain.AuthState { return m.authState }
func (m Model) Status() string              { return m.status }
func (m Model) Live() bool                  { return m.live }

// Visible returns the records after the current search and sort.
func (m Model) Visible() []domain.InventoryRecord { return m.visible }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

type signedInMsg struct{ session client.Session }

type signInFailedMsg struct{ err error }

type recordsLoadedMsg struct{ records []domain.InventoryRecord }

type recordDeletedMsg struct{ id string }

type reportSavedMsg struct{ path string }

type signedOutMsg struct{}

type errMsg struct{ err error }

type registeredMsg struct{ account client.Account }

type registerFailedMsg struct{ err error }

type resetSentMsg struct{ email string }

type resetDoneMsg struct{}

type recordFetchedMsg struct{ record domain.InventoryRecord }

type recordSavedMsg struct {
	record  domain.InventoryRecord
	created bool
}

type streamOpenedMsg struct {
	gen    int
	events <-chan domain.InventoryEvent
}

type streamClosedMsg struct {
	gen int
	err error
}

type changeMsg struct {
	gen   int
	event domain.InventoryEvent
}

type resubscribeMsg struct{ gen int }

func (m Model) signInCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		session, err := m.api.SignIn(ctx, username, password)
		if err != nil {
			return signInFailedMsg{err: err}
		}
		return signedInMsg{session: session}
	}
}

func (m Model) registerCmd(in domain.RegisterInput) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		account, err := m.api.Register(ctx, in.Username, in.Email, in.Password)
		if err != nil {
			return registerFailedMsg{err: err}
		}
		return registeredMsg{account: account}
	}
}

func (m Model) requestResetCmd(email string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.api.RequestPasswordReset(ctx, email); err != nil {
			return errMsg{err: err}
		}
		return resetSentMsg{email: email}
	}
}

func (m Model) confirmResetCmd(token, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.api.ConfirmPasswordReset(ctx, token, password); err != nil {
			return errMsg{err: err}
		}
		return resetDoneMsg{}
	}
}

// loadRecordsCmd fetches everything; search and sort run locally.
func (m Model) loadRecordsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		records, err := m.api.ListRecords(ctx, domain.ListQuery{})
		if err != nil {
			return errMsg{err: fmt.Errorf("load items: %w", err)}
		}
		out := make([]domain.InventoryRecord, 0, len(records))
		for _, r := range records {
			out = append(out, r.ToDomain())
		}
		return recordsLoadedMsg{records: out}
	}
}

// fetchForEditCmd reloads the record so the edit starts from its latest version.
func (m Model) fetchForEditCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		record, err := m.api.GetRecord(ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("load item: %w", err)}
		}
		return recordFetchedMsg{record: record.ToDomain()}
	}
}

func (m Model) saveCmd(editing domain.InventoryRecord, form domain.RecordForm, photoPath, idempotencyKey string) tea.Cmd {
	return func() tea.Msg {
		var photo *domain.PhotoUpload
		if photoPath != "" {
			var err error
			if photo, err = client.LoadPhoto(photoPath); err != nil {
				return errMsg{err: err}
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if editing.ID == "" {
			record, err := m.api.CreateRecord(ctx, form, photo, idempotencyKey)
			if err != nil {
				return errMsg{err: err}
			}
			return recordSavedMsg{record: record.ToDomain(), created: true}
		}
		record, err := m.api.UpdateRecord(ctx, editing.ID, form, photo, editing.Version)
		if err != nil {
			return errMsg{err: err}
		}
		return recordSavedMsg{record: record.ToDomain()}
	}
}

func subscribeCmd(ctx context.Context, api API, gen int) tea.Cmd {
	return func() tea.Msg {
		events, err := api.Subscribe(ctx)
		if err != nil {
			return streamClosedMsg{gen: gen, err: err}
		}
		return streamOpenedMsg{gen: gen, events: events}
	}
}

// waitForChange blocks until the next event or the end of the stream.
func waitForChange(events <-chan domain.InventoryEvent, gen int) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamClosedMsg{gen: gen}
		}
		return changeMsg{gen: gen, event: event}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.api.DeleteRecord(ctx, id); err != nil {
			return errMsg{err: err}
		}
		return recordDeletedMsg{id: id}
	}
}

func (m Model) downloadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		path, err := m.api.DownloadReport(ctx, m.downloadDir)
		if err != nil {
			return errMsg{err: fmt.Errorf("download report: %w", err)}
		}
		return reportSavedMsg{path: path}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.api.SignOut(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
			return errMsg{err: err}
		}
		return signedOutMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case signedInMsg:
		m.authState = domain.AuthStateAuthenticated
		m.account = msg.session.Account
		m.password.SetValue("")
		m.mode = ModeList
		m.status = "signed in as " + msg.session.Account.Username
		m.err = nil
		m.streamGen++
		m.streamCtx, m.stopStream = context.WithCancel(context.Background())
		return m, tea.Batch(m.loadRecordsCmd(), subscribeCmd(m.streamCtx, m.api, m.streamGen))

	case registeredMsg:
		m.authState = domain.AuthStateRegistered
		m.mode = ModeLogin
		m.username.SetValue(msg.account.Username)
		m.password.SetValue("")
		m.username.Blur()
		m.password.Focus()
		m.status = "account created, please sign in"
		m.err = nil
		return m, nil

	case registerFailedMsg:
		m.authState = domain.AuthStateRegistrationFailed
		m.err = msg.err
		return m, nil

	case resetSentMsg:
		m.resetSent = true
		m.reset.focusOn(resetToken)
		m.status = "reset link sent to " + msg.email
		m.err = nil
		return m, nil

	case resetDoneMsg:
		m = m.toLogin("password updated, please sign in")
		return m, nil

	case recordFetchedMsg:
		return m.openForm(msg.record), nil

	case recordSavedMsg:
		m.saving = false
		m.records = upsert(m.records, msg.record)
		m.refilter()
		m.mode = ModeList
		m.status = "item updated"
		if msg.created {
			m.status = "item added"
		}
		m.err = nil
		return m, nil

	case streamOpenedMsg:
		if msg.gen != m.streamGen {
			return m, nil
		}
		m.live = true
		m.events = msg.events
		return m, waitForChange(m.events, msg.gen)

	case changeMsg:
		if msg.gen != m.streamGen {
			return m, nil
		}
		// The stream stays open; its next read is queued with the reload.
		return m, tea.Batch(m.loadRecordsCmd(), waitForChange(m.events, msg.gen))

	case streamClosedMsg:
		if msg.gen != m.streamGen {
			return m, nil
		}
		m.live = false
		m.events = nil
		if errors.Is(msg.err, client.ErrUnauthorized) {
			return m.toLogin("please sign in again"), nil
		}
		if m.streamCtx == nil || m.streamCtx.Err() != nil {
			return m, nil
		}
		gen := msg.gen
		return m, tea.Tick(streamRetryDelay, func(time.Time) tea.Msg { return resubscribeMsg{gen: gen} })

	case resubscribeMsg:
		if msg.gen != m.streamGen || m.streamCtx == nil || m.streamCtx.Err() != nil {
			return m, nil
		}
		return m, subscribeCmd(m.streamCtx, m.api, m.streamGen)

	case signInFailedMsg:
		m.authState = domain.AuthStateAuthenticationFailed
		m.err = msg.err
		return m, nil

	case recordsLoadedMsg:
		m.records = msg.records
		m.refilter()
		if m.mode == ModeDetail {
			for _, r := range m.records {
				if r.ID == m.selected.ID {
					m.selected = r
				}
			}
		}
		return m, nil

	case recordDeletedMsg:
		kept := m.records[:0:0]
		for _, r := range m.records {
			if r.ID != msg.id {
				kept = append(kept, r)
			}
		}
		m.records = kept
		m.refilter()
		m.mode = ModeList
		m.status = "item deleted"
		m.err = nil
		return m, nil

	case reportSavedMsg:
		m.status = "report saved to " + msg.path
		m.err = nil
		return m, nil

	case signedOutMsg:
		return m.toLogin(""), nil

	case errMsg:
		if errors.Is(msg.err, client.ErrUnauthorized) {
			return m.toLogin("please sign in again"), nil
		}
		m.err = msg.err
		m.saving = false
		if m.mode == ModeConfirmDelete {
			m.mode = m.prevMode
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.mode {
		case ModeLogin:
			return m.updateLogin(msg)
		case ModeRegister:
			return m.updateRegister(msg)
		case ModeResetPassword:
			return m.updateReset(msg)
		case ModeForm:
			return m.updateForm(msg)
		case ModeList:
			return m.updateList(msg)
		case ModeDetail:
			return m.updateDetail(msg)
		case ModeConfirmDelete:
			return m.updateConfirm(msg)
		}
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.authState.InProgress() {
		return m, nil
	}

	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "ctrl+n":
		m.mode = ModeRegister
		m.register = newRegisterFields()
		m.authState = domain.AuthStateIdle
		m.status, m.err = "", nil
		return m, nil
	case "ctrl+r":
		m.mode = ModeResetPassword
		m.reset = newResetFields()
		m.resetSent = false
		m.status, m.err = "", nil
		return m, nil
	case "tab", "shift+tab", "up", "down":
		return m.toggleLoginFocus(), nil
	case "enter":
		if m.username.Focused() {
			return m.toggleLoginFocus(), nil
		}
		username := strings.TrimSpace(m.username.Value())
		switch {
		case username == "":
			m.err = domain.ErrMissingUsername
			return m, nil
		case m.password.Value() == "":
			m.err = domain.ErrMissingPassword
			return m, nil
		}
		m.authState = domain.AuthStateAuthenticating
		m.err = nil
		return m, m.signInCmd(username, m.password.Value())
	}

	var cmd tea.Cmd
	if m.username.Focused() {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func newRegisterFields() fieldSet {
	return newFieldSet(
		field{label: "Username", placeholder: "username", limit: 64},
		field{label: "Email", placeholder: "you@example.com", limit: 254},
		field{label: "Password", placeholder: "at least 6 characters", secret: true},
	)
}

func newResetFields() fieldSet {
	return newFieldSet(
		field{label: "Email", placeholder: "you@example.com", limit: 254},
		field{label: "Token", placeholder: "from the reset email"},
		field{label: "Password", placeholder: "new password", secret: true},
	)
}

func newRecordFields() fieldSet {
	return newFieldSet(
		field{label: "Name", placeholder: "item name", limit: 255},
		field{label: "Quantity", placeholder: "0", limit: 10},
		field{label: "Price", placeholder: "0.00", limit: 16},
		field{label: "Photo", placeholder: "optional path to an image"},
	)
}

// navigate handles the keys every form shares. It reports whether the key
// was consumed.
func navigate(fs *fieldSet, msg tea.KeyMsg) bool {
	switch msg.String() {
	case "tab", "down":
		fs.next()
	case "shift+tab", "up":
		fs.prev()
	case "enter":
		if fs.onLast() {
			return false
		}
		fs.next()
	default:
		return false
	}
	return true
}

func (m Model) updateRegister(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.authState.InProgress() {
		return m, nil
	}
	if msg.String() == "esc" {
		m.mode = ModeLogin
		m.authState = domain.AuthStateIdle
		m.err = nil
		return m, nil
	}
	if navigate(&m.register, msg) {
		return m, nil
	}
	if msg.String() != "enter" {
		return m, m.register.update(msg)
	}

	in, err := domain.RegisterInput{
		Username: m.register.value(regUsername),
		Email:    m.register.value(regEmail),
		Password: m.register.value(regPassword),
	}.Validate()
	if err != nil {
		m.authState = domain.AuthStateRegistrationFailed
		m.err = err
		return m, nil
	}
	m.authState = domain.AuthStateRegistering
	m.err = nil
	return m, m.registerCmd(in)
}

func (m Model) updateReset(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		return m.toLogin(""), nil
	}

	if !m.resetSent {
		// Only the email field is live until the link has been sent.
		if msg.String() != "enter" {
			if msg.String() == "tab" || msg.String() == "shift+tab" {
				return m, nil
			}
			return m, m.reset.update(msg)
		}
		email := strings.TrimSpace(m.reset.value(resetEmail))
		switch {
		case email == "":
			m.err = domain.ErrMissingEmail
			return m, nil
		case !domain.ValidEmail(email):
			m.err = domain.ErrInvalidEmail
			return m, nil
		}
		m.err = nil
		m.status = "sending reset link"
		return m, m.requestResetCmd(email)
	}

	if m.reset.focus == resetEmail {
		m.reset.focusOn(resetToken)
	}
	if navigate(&m.reset, msg) {
		if m.reset.focus == resetEmail {
			m.reset.focusOn(resetToken)
		}
		return m, nil
	}
	if msg.String() != "enter" {
		return m, m.reset.update(msg)
	}

	token := strings.TrimSpace(m.reset.value(resetToken))
	password := m.reset.value(resetPassword)
	switch {
	case token == "":
		m.err = errors.New("please paste the token from the reset email")
		return m, nil
	case len(password) < domain.MinPasswordLength:
		m.err = domain.ErrWeakPassword
		return m, nil
	}
	m.err = nil
	return m, m.confirmResetCmd(token, password)
}

// openForm shows the add form for a zero record, or the edit form.
func (m Model) openForm(rec domain.InventoryRecord) Model {
	m.form = newRecordFields()
	m.editing = rec
	m.submitKey = uuid.NewString()
	m.saving = false
	if rec.ID != "" {
		m.form.set(formName, rec.Name)
		m.form.set(formQuantity, strconv.Itoa(rec.Quantity))
		m.form.set(formPrice, rec.Price.StringFixed(2))
	}
	if m.mode != ModeForm {
		m.prevMode = m.mode
	}
	m.mode = ModeForm
	m.status, m.err = "", nil
	return m
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	if msg.String() == "esc" {
		m.mode = m.prevMode
		m.err = nil
		return m, nil
	}
	if navigate(&m.form, msg) {
		return m, nil
	}
	if msg.String() != "enter" {
		return m, m.form.update(msg)
	}

	form := domain.RecordForm{
		Name:     m.form.value(formName),
		Quantity: m.form.value(formQuantity),
		Price:    m.form.value(formPrice),
	}
	// Same checks the server runs; a bad form never leaves the terminal.
	if _, err := form.Validate(); err != nil {
		m.err = err
		return m, nil
	}
	m.saving = true
	m.err = nil
	m.status = "saving " + strings.TrimSpace(form.Name)
	return m, m.saveCmd(m.editing, form, strings.TrimSpace(m.form.value(formPhoto)), m.submitKey)
}

func (m Model) toggleLoginFocus() Model {
	if m.username.Focused() {
		m.username.Blur()
		m.password.Focus()
	} else {
		m.password.Blur()
		m.username.Focus()
	}
	return m
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "enter", "esc":
			m.searching = false
			m.search.Blur()
			m.table.Focus()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.query.Search = m.search.Value()
		m.refilter()
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "a":
		return m.openForm(domain.InventoryRecord{}), nil
	case "e":
		if rec, ok := m.current(); ok {
			m.status = "loading " + rec.Name
			return m, m.fetchForEditCmd(rec.ID)
		}
		return m, nil
	case "/":
		m.searching = true
		m.table.Blur()
		return m, m.search.Focus()
	case "s":
		m.query.SortBy = nextSortKey(m.query.SortBy)
		m.refilter()
		return m, nil
	case "o":
		if m.query.Order == domain.Descending {
			m.query.Order = domain.Ascending
		} else {
			m.query.Order = domain.Descending
		}
		m.refilter()
		return m, nil
	case "r":
		m.status = "refreshing"
		return m, m.loadRecordsCmd()
	case "p":
		m.status = "generating report"
		return m, m.downloadCmd()
	case "x":
		return m, m.signOutCmd()
	case "enter":
		if rec, ok := m.current(); ok {
			m.selected = rec
			m.mode = ModeDetail
		}
		return m, nil
	case "d":
		if rec, ok := m.current(); ok {
			return m.askDelete(rec), nil
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace", "q":
		m.mode = ModeList
	case "e":
		m.status = "loading " + m.selected.Name
		return m, m.fetchForEditCmd(m.selected.ID)
	case "d":
		return m.askDelete(m.selected), nil
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	answered, yes := m.confirm.update(msg)
	if !answered {
		return m, nil
	}
	if !yes {
		m.mode = m.prevMode
		return m, nil
	}
	m.status = "deleting " + m.selected.Name
	return m, m.deleteCmd(m.selected.ID)
}

func (m Model) askDelete(rec domain.InventoryRecord) Model {
	m.selected = rec
	m.prevMode = m.mode
	m.mode = ModeConfirmDelete
	m.confirm = newConfirmDialog("Delete item", fmt.Sprintf("Delete %q? This cannot be undone.", rec.Name))
	return m
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.stopStream != nil {
		m.stopStream()
	}
	return m, tea.Quit
}

func (m Model) toLogin(message string) Model {
	if m.stopStream != nil {
		m.stopStream()
	}
	m.stopStream = nil
	m.streamCtx = nil
	m.streamGen++
	m.events = nil
	m.live = false
	m.mode = ModeLogin
	m.authState = domain.AuthStateIdle
	m.account = client.Account{}
	m.records = nil
	m.visible = nil
	m.table.SetRows(nil)
	m.password.SetValue("")
	m.password.Blur()
	m.username.Focus()
	m.status = message
	m.err = nil
	return m
}

// upsert replaces the record with the same ID, or appends it.
func upsert(records []domain.InventoryRecord, rec domain.InventoryRecord) []domain.InventoryRecord {
	out := make([]domain.InventoryRecord, 0, len(records)+1)
	found := false
	for _, r := range records {
		if r.ID == rec.ID {
			r = rec
			found = true
		}
		out = append(out, r)
	}
	if !found {
		out = append(out, rec)
	}
	return out
}

func (m Model) current() (domain.InventoryRecord, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return domain.InventoryRecord{}, false
	}
	return m.visible[i], true
}

func (m *Model) refilter() {
	m.visible = domain.ApplyListQuery(m.records, m.query)
	rows := make([]table.Row, 0, len(m.visible))
	for _, r := range m.visible {
		rows = append(rows, table.Row{r.Name, strconv.Itoa(r.Quantity), domain.FormatMoney(r.Price)})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func nextSortKey(k domain.SortKey) domain.SortKey {
	for i, key := range sortCycle {
		if key == k {
			return sortCycle[(i+1)%len(sortCycle)]
		}
	}
	return domain.SortByName
}

func (m Model) View() string {
	var body string
	switch m.mode {
	case ModeLogin:
		body = m.loginView()
	case ModeList:
		body = m.listView()
	case ModeDetail:
		body = m.detailView()
	case ModeConfirmDelete:
		body = m.confirm.view()
	case ModeRegister:
		body = m.registerView()
	case ModeResetPassword:
		body = m.resetView()
	case ModeForm:
		body = m.formView()
	}

	var b strings.Builder
	b.WriteString(body)
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
	} else if m.status != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(m.status))
	}
	return b.String()
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Easy Inventory"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Username") + m.username.View() + "\n")
	b.WriteString(labelStyle.Render("Password") + m.password.View() + "\n")
	if m.authState.InProgress() {
		b.WriteString(mutedStyle.Render("\nsigning in..."))
	}
	b.WriteString(helpStyle.Render(strings.Join([]string{
		formatKey("tab", "switch field"),
		formatKey("enter", "sign in"),
		formatKey("ctrl+n", "register"),
		formatKey("ctrl+r", "forgot password"),
		formatKey("esc", "quit"),
	}, " • ")))
	return boxStyle.Render(b.String())
}

func (m Model) registerView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Create account"))
	b.WriteString("\n")
	b.WriteString(m.register.view())
	if m.authState.InProgress() {
		b.WriteString(mutedStyle.Render("\nregistering..."))
	}
	b.WriteString(helpStyle.Render(formatKey("tab", "next field") + " • " + formatKey("enter", "register") + " • " + formatKey("esc", "back")))
	return boxStyle.Render(b.String())
}

func (m Model) resetView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Reset password"))
	b.WriteString("\n")
	if !m.resetSent {
		b.WriteString(labelStyle.Render(m.reset.labels[resetEmail]) + m.reset.inputs[resetEmail].View() + "\n")
		b.WriteString(helpStyle.Render(formatKey("enter", "send reset link") + " • " + formatKey("esc", "back")))
		return boxStyle.Render(b.String())
	}
	b.WriteString(m.reset.view())
	b.WriteString(helpStyle.Render(formatKey("tab", "next field") + " • " + formatKey("enter", "set password") + " • " + formatKey("esc", "back")))
	return boxStyle.Render(b.String())
}

func (m Model) formView() string {
	title := "Add item"
	if m.editing.ID != "" {
		title = "Edit " + m.editing.Name
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.form.view())
	if m.editing.HasPhoto() {
		b.WriteString(mutedStyle.Render("leave photo empty to keep " + m.editing.Photo))
		b.WriteString("\n")
	}
	if m.saving {
		b.WriteString(mutedStyle.Render("\nsaving..."))
	}
	b.WriteString(helpStyle.Render(formatKey("tab", "next field") + " • " + formatKey("enter", "save") + " • " + formatKey("esc", "cancel")))
	return boxStyle.Render(b.String())
}

func (m Model) listView() string {
	var b strings.Builder
	title := "Inventory"
	if m.account.Username != "" {
		title += " · " + m.account.Username
	}
	if m.live {
		title += " · live"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	if m.searching || m.query.Search != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d items · sorted by %s %s", len(m.visible), m.query.SortBy, m.query.Order)))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString(helpStyle.Render(strings.Join([]string{
		formatKey("/", "search"),
		formatKey("s", "sort"),
		formatKey("o", "order"),
		formatKey("enter", "details"),
		formatKey("a", "add"),
		formatKey("e", "edit"),
		formatKey("d", "delete"),
		formatKey("p", "pdf report"),
		formatKey("r", "refresh"),
		formatKey("x", "sign out"),
		formatKey("q", "quit"),
	}, " • ")))
	return b.String()
}

func (m Model) detailView() string {
	r := m.selected
	photo := "none"
	if r.HasPhoto() {
		photo = r.Photo
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Name))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Quantity") + strconv.Itoa(r.Quantity) + "\n")
	b.WriteString(labelStyle.Render("Price") + domain.FormatMoney(r.Price) + "\n")
	b.WriteString(labelStyle.Render("Total") + domain.FormatMoney(r.LineTotal()) + "\n")
	b.WriteString(labelStyle.Render("Photo") + photo + "\n")
	b.WriteString(labelStyle.Render("Updated") + r.UpdatedAt.Local().Format("02/01/2006 15:04") + "\n")
	b.WriteString(helpStyle.Render(formatKey("e", "edit") + " • " + formatKey("d", "delete") + " • " + formatKey("esc", "back")))
	return boxStyle.Render(b.String())
}
