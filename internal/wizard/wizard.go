// Package wizard implements the interactive "rowplane init" flow and the
// project scaffolding it writes.
package wizard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"

	"github.com/rowplane/rowplane/internal/config"
)

// field is one prompt of the connection details screen.
type field struct {
	key    string
	label  string
	value  string
	secret bool
	set    func(env *Environment, v string)
}

var nameField = field{key: "name", label: "Environment name", set: func(e *Environment, v string) { e.Name = v }}

// connectionFields lists the prompts per database type, after the name.
var connectionFields = map[string][]field{
	"postgres": {
		{key: "host", label: "Host", value: "localhost", set: func(e *Environment, v string) { e.Host = v }},
		{key: "port", label: "Port", value: "5432", set: func(e *Environment, v string) { e.Port = v }},
		{key: "database", label: "Database", value: "rowplane", set: func(e *Environment, v string) { e.Database = v }},
		{key: "user", label: "User", value: "rowplane", set: func(e *Environment, v string) { e.User = v }},
		{key: "password", label: "Password", secret: true, set: func(e *Environment, v string) { e.Password = v }},
	},
	"sqlite": {
		{key: "path", label: "Database file path", value: "rowplane.db", set: func(e *Environment, v string) { e.FilePath = v }},
	},
	"libsql": {
		{key: "url", label: "Database URL", value: "libsql://[name]-[org].turso.io", set: func(e *Environment, v string) { e.URL = v }},
		{key: "token", label: "Auth token", secret: true, set: func(e *Environment, v string) { e.AuthToken = v }},
	},
}

// Choices offered after a failed connection test.
const (
	retryConnection = iota
	editConnection
	quitWizard
)

// New creates a wizard that scaffolds a project in dir.
func New(dir string, opts Options) WizardModel {
	return WizardModel{
		state:  StateWelcome,
		dir:    dir,
		opts:   opts,
		errors: make(map[string]string),
	}
}

// Init looks for an existing rowplane.toml.
func (m WizardModel) Init() tea.Cmd {
	return checkForExistingConfig(m.dir)
}

// Update handles key presses and the results of background commands.
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case connectionTestResultMsg:
		m.testingConnection = false
		m.connectionError = msg.err
		m.connectionTestResult = "success"
		if msg.err != nil {
			m.connectionTestResult = "failed"
		}

	case fileCreationResultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = StateError
			break
		}
		m.result = msg.result
		m.state = StateDone

	case existingConfigMsg:
		if msg.path != "" {
			m.existingConfigPath = msg.path
			m.existingEnvNames = msg.envNames
			m.state = StateCheckExisting
		}
	}
	return m, nil
}

func (m WizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	editing := m.state == StateConnectionDetails

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		// q is an ordinary character in a text field
		if !editing {
			return m, tea.Quit
		}
	case "enter":
		return m.handleEnter()
	case "up":
		m.move(-1, false)
		return m, nil
	case "down":
		m.move(1, false)
		return m, nil
	case "tab":
		if editing {
			m.move(1, true)
		}
		return m, nil
	}

	if !editing || len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
	return m, cmd
}

// move shifts the cursor of the current screen by delta, clamping at the
// ends unless wrap is set.
func (m *WizardModel) move(delta int, wrap bool) {
	step := func(i, n int) int {
		i += delta
		switch {
		case wrap:
			return (i + n) % n
		case i < 0:
			return 0
		case i >= n:
			return n - 1
		}
		return i
	}

	switch m.state {
	case StateDatabaseType:
		m.dbTypeIndex = step(m.dbTypeIndex, len(DatabaseTypes))
	case StateConnectionDetails:
		if len(m.inputs) > 0 {
			m.focusIndex = step(m.focusIndex, len(m.inputs))
			m.updateInputFocus()
		}
	case StateTestConnection:
		if m.connectionTestResult == "failed" {
			m.retryChoice = step(m.retryChoice, quitWizard+1)
		}
	case StateAddAnother:
		m.addAnotherChoice = step(m.addAnotherChoice, 2)
	}
}

func (m WizardModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateWelcome, StateCheckExisting:
		m.state = StateDatabaseType

	case StateDatabaseType:
		m.currentEnv = Environment{DatabaseType: DatabaseTypes[m.dbTypeIndex].ID}
		m.state = StateConnectionDetails
		m.initializeInputs()

	case StateConnectionDetails:
		if !m.collectInputValues() {
			return m, nil
		}
		m.state = StateTestConnection
		m.testingConnection = true
		return m, m.testConnection()

	case StateTestConnection:
		return m.handleTestResult()

	case StateAddAnother:
		m.state = StateSummary
		if m.addAnotherChoice == 0 {
			m.state = StateDatabaseType
		}

	case StateSummary:
		m.state = StateCreating
		return m, m.createFiles()

	case StateDone, StateError:
		return m, tea.Quit
	}
	return m, nil
}

func (m WizardModel) handleTestResult() (tea.Model, tea.Cmd) {
	if m.testingConnection {
		return m, nil
	}

	if m.connectionTestResult == "success" {
		m.environments = upsertEnvironment(m.environments, m.currentEnv)
		m.currentEnv = Environment{}
		m.connectionTestResult = ""
		m.addAnotherChoice = 1
		m.state = StateAddAnother
		return m, nil
	}

	m.connectionTestResult = ""
	m.connectionError = nil
	switch m.retryChoice {
	case retryConnection:
		m.testingConnection = true
		return m, m.testConnection()
	case editConnection:
		m.retryChoice = retryConnection
		m.state = StateConnectionDetails
		return m, nil
	default:
		return m, tea.Quit
	}
}

// upsertEnvironment replaces an environment of the same name, so going
// through the flow twice for "local" keeps the last answer.
func upsertEnvironment(envs []Environment, env Environment) []Environment {
	i := slices.IndexFunc(envs, func(e Environment) bool { return e.Name == env.Name })
	if i >= 0 {
		envs[i] = env
		return envs
	}
	return append(envs, env)
}

func (m *WizardModel) initializeInputs() {
	name := nameField
	if len(m.environments) == 0 {
		name.value = "local"
	}
	m.fields = append([]field{name}, connectionFields[m.currentEnv.DatabaseType]...)

	m.inputs = make([]textinput.Model, len(m.fields))
	for i, f := range m.fields {
		input := textinput.New()
		input.Placeholder = f.label
		input.SetValue(f.value)
		if f.secret {
			input.EchoMode = textinput.EchoPassword
			input.EchoCharacter = '*'
		}
		m.inputs[i] = input
	}
	m.focusIndex = 0
	m.errors = make(map[string]string)
	m.updateInputFocus()
}

func (m *WizardModel) updateInputFocus() {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

// collectInputValues copies the text fields into currentEnv and reports
// whether they are valid. Problems are keyed by field in m.errors.
func (m *WizardModel) collectInputValues() bool {
	for i, f := range m.fields {
		f.set(&m.currentEnv, strings.TrimSpace(m.inputs[i].Value()))
	}

	m.errors = make(map[string]string)
	if err := ValidateEnvironmentName(m.currentEnv.Name); err != nil {
		m.errors["name"] = err.Error()
	}
	switch m.currentEnv.DatabaseType {
	case "postgres":
		if err := ValidatePort(m.currentEnv.Port); err != nil {
			m.errors["port"] = err.Error()
		}
	case "libsql":
		if !strings.HasPrefix(m.currentEnv.URL, "libsql://") {
			m.errors["url"] = "libSQL URL must start with libsql://"
		}
	}
	return len(m.errors) == 0
}

type connectionTestResultMsg struct {
	err error
}

func (m WizardModel) testConnection() tea.Cmd {
	env := m.currentEnv
	return func() tea.Msg {
		return connectionTestResultMsg{err: TestConnection(context.Background(), env)}
	}
}

type fileCreationResultMsg struct {
	result *Result
	err    error
}

func (m WizardModel) createFiles() tea.Cmd {
	dir, envs, opts := m.dir, m.environments, m.opts
	return func() tea.Msg {
		result, err := Generate(dir, envs, opts)
		return fileCreationResultMsg{result: result, err: err}
	}
}

type existingConfigMsg struct {
	path     string
	envNames []string
}

func checkForExistingConfig(dir string) tea.Cmd {
	return func() tea.Msg {
		names, err := environmentNames(filepath.Join(dir, config.FileName))
		if err != nil || len(names) == 0 {
			return existingConfigMsg{}
		}
		return existingConfigMsg{path: config.FileName, envNames: names}
	}
}

// environmentNames lists the environments defined in a rowplane.toml.
func environmentNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Run starts the interactive wizard in dir.
func Run(dir string, opts Options) error {
	final, err := tea.NewProgram(New(dir, opts)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(WizardModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

// RunNonInteractive writes the scaffolding for a single environment
// without prompting, and prints what it did.
func RunNonInteractive(dir string, env Environment, opts Options) (*Result, error) {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil && !opts.Force {
		return nil, fmt.Errorf("%s already exists, use --force to overwrite it", config.FileName)
	}
	result, err := Generate(dir, []Environment{env}, opts)
	if err != nil {
		return nil, err
	}
	fmt.Print(resultLines(result))
	return result, nil
}
