package wizard

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// New creates a new wizard model
func New(force bool) Model {
	return Model{
		state:        StateWelcome,
		force:        force,
		currentRole:  RoleSource,
		environments: []EnvironmentInput{},
		errors:       make(map[string]string),
		inputs:       []textinput.Model{},
	}
}

// Init initializes the wizard (Bubble Tea Init)
func (m Model) Init() tea.Cmd {
	return checkForExistingConfig
}

// Update handles state transitions (Bubble Tea Update)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != StateConnectionDetails {
				return m, tea.Quit
			}
			return m.handleTextInput(msg)

		case "enter":
			return m.handleEnter()

		case "up":
			return m.handleUp()

		case "down":
			return m.handleDown()

		case "tab":
			return m.handleTab()

		default:
			return m.handleTextInput(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case connectionTestResultMsg:
		m.testingConnection = false
		if msg.err != nil {
			m.connectionError = msg.err
			m.connectionTestResult = "failed"
		} else {
			m.connectionTestResult = "success"
			m.connectionError = nil
		}
		return m, nil

	case fileCreationResultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = StateError
			return m, nil
		}
		m.result = msg.result
		m.state = StateDone
		return m, nil

	case existingConfigMsg:
		if msg.path != "" && !m.force {
			m.existingConfigPath = msg.path
			m.existingEnvNames = msg.envNames
			m.state = StateCheckExisting
		} else {
			m.state = StateWelcome
		}
		return m, nil
	}

	return m, nil
}

// View renders the wizard UI (Bubble Tea View)
func (m Model) View() string {
	switch m.state {
	case StateWelcome:
		return m.renderWelcome()
	case StateCheckExisting:
		return m.renderCheckExisting()
	case StateDatabaseType:
		return m.renderDatabaseType()
	case StateConnectionDetails:
		return m.renderConnectionDetails()
	case StateTestConnection:
		return m.renderTestConnection()
	case StateAddAnother:
		return m.renderAddAnother()
	case StateSummary:
		return m.renderSummary()
	case StateCreating:
		return m.renderCreating()
	case StateDone:
		return m.renderDone()
	case StateError:
		return m.renderError()
	default:
		return "Unknown state"
	}
}

// State transition handlers

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateWelcome, StateCheckExisting:
		m.state = StateDatabaseType
		m.currentRole = RoleSource
		return m, nil

	case StateDatabaseType:
		conn := ConnectionInput{
			Role:         m.currentRole,
			DatabaseType: DatabaseTypes[m.dbTypeIndex].ID,
		}
		if m.currentRole == RoleSource {
			m.currentEnv.Source = conn
		} else {
			m.currentEnv.Destination = conn
		}
		m.state = StateConnectionDetails
		m.initializeInputs()
		return m, nil

	case StateConnectionDetails:
		if err := m.collectInputValues(); err != nil {
			return m, nil
		}
		m.state = StateTestConnection
		m.testingConnection = true
		return m, m.testConnection()

	case StateTestConnection:
		switch m.connectionTestResult {
		case "success":
			return m.advanceAfterConnection()
		case "failed":
			switch m.retryChoice {
			case 0: // Retry
				m.connectionTestResult = ""
				m.connectionError = nil
				m.testingConnection = true
				return m, m.testConnection()
			case 1: // Edit
				m.state = StateConnectionDetails
				m.connectionTestResult = ""
				m.connectionError = nil
				m.retryChoice = 0
				return m, nil
			case 2: // Keep anyway (server may be reachable later)
				return m.advanceAfterConnection()
			case 3: // Quit
				return m, tea.Quit
			}
		}
		return m, nil

	case StateAddAnother:
		m.state = StateSummary
		return m, nil

	case StateSummary:
		m.state = StateCreating
		return m, m.createFiles()

	case StateDone, StateError:
		return m, tea.Quit
	}

	return m, nil
}

// advanceAfterConnection moves from a finished connection setup to the
// destination connection or, once both sides are configured, onward
func (m Model) advanceAfterConnection() (tea.Model, tea.Cmd) {
	m.connectionTestResult = ""
	m.connectionError = nil
	m.retryChoice = 0
	m.dbTypeIndex = 0

	if m.currentRole == RoleSource {
		m.currentRole = RoleDestination
		m.state = StateDatabaseType
		return m, nil
	}

	m.environments = append(m.environments, m.currentEnv)
	m.currentEnv = EnvironmentInput{}
	m.currentRole = RoleSource
	m.state = StateAddAnother
	return m, nil
}

func (m Model) handleUp() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateDatabaseType:
		if m.dbTypeIndex > 0 {
			m.dbTypeIndex--
		}
	case StateConnectionDetails:
		if m.focusIndex > 0 {
			m.focusIndex--
			m.updateInputFocus()
		}
	case StateTestConnection:
		if m.connectionTestResult == "failed" && m.retryChoice > 0 {
			m.retryChoice--
		}
	}
	return m, nil
}

func (m Model) handleDown() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateDatabaseType:
		if m.dbTypeIndex < len(DatabaseTypes)-1 {
			m.dbTypeIndex++
		}
	case StateConnectionDetails:
		if m.focusIndex < len(m.inputs)-1 {
			m.focusIndex++
			m.updateInputFocus()
		}
	case StateTestConnection:
		if m.connectionTestResult == "failed" && m.retryChoice < 3 {
			m.retryChoice++
		}
	}
	return m, nil
}

func (m Model) handleTab() (tea.Model, tea.Cmd) {
	if m.state == StateConnectionDetails {
		m.focusIndex = (m.focusIndex + 1) % len(m.inputs)
		m.updateInputFocus()
	}
	return m, nil
}

func (m Model) handleTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateConnectionDetails && len(m.inputs) > 0 {
		var cmd tea.Cmd
		m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
		return m, cmd
	}
	return m, nil
}

// Input management

func (m *Model) currentConn() *ConnectionInput {
	if m.currentRole == RoleSource {
		return &m.currentEnv.Source
	}
	return &m.currentEnv.Destination
}

func (m *Model) initializeInputs() {
	m.inputs = []textinput.Model{}
	m.focusIndex = 0
	m.errors = make(map[string]string)

	// The environment name is collected once, on the source screen;
	// the models manifest path once, on the destination screen
	if m.currentRole == RoleSource {
		m.inputs = append(m.inputs, m.makeInput("Environment name", "local", false))
	}

	switch m.currentConn().DatabaseType {
	case "postgres":
		m.inputs = append(m.inputs,
			m.makeInput("Host", "localhost", false),
			m.makeInput("Port", "5432", false),
			m.makeInput("Database", "", false),
			m.makeInput("User", "postgres", false),
			m.makeInput("Password", "", true),
		)
	case "mysql":
		m.inputs = append(m.inputs,
			m.makeInput("Host", "localhost", false),
			m.makeInput("Port", "3306", false),
			m.makeInput("Database", "", false),
			m.makeInput("User", "root", false),
			m.makeInput("Password", "", true),
		)
	case "sqlite":
		m.inputs = append(m.inputs, m.makeInput("Database file path", "data.db", false))
	case "libsql":
		m.inputs = append(m.inputs,
			m.makeInput("Database URL", "libsql://[name]-[org].turso.io", false),
			m.makeInput("Auth token", "", true),
		)
	}

	if m.currentRole == RoleDestination {
		m.inputs = append(m.inputs, m.makeInput("Models manifest path", "models.toml", false))
	}

	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
}

func (m *Model) makeInput(placeholder, value string, isPassword bool) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.SetValue(value)
	if isPassword {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '*'
	}
	return input
}

func (m *Model) updateInputFocus() {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *Model) collectInputValues() error {
	values := make([]string, len(m.inputs))
	for i := range m.inputs {
		values[i] = m.inputs[i].Value()
	}

	next := 0
	if m.currentRole == RoleSource {
		m.currentEnv.Name = values[0]
		next = 1
		if err := ValidateEnvironmentName(m.currentEnv.Name); err != nil {
			m.errors["name"] = err.Error()
			return err
		}
	}

	conn := m.currentConn()
	switch conn.DatabaseType {
	case "postgres", "mysql":
		conn.Host = values[next]
		conn.Port = values[next+1]
		conn.Database = values[next+2]
		conn.User = values[next+3]
		conn.Password = values[next+4]
		next += 5
		if err := ValidatePort(conn.Port); err != nil {
			m.errors["port"] = err.Error()
			return err
		}
	case "sqlite":
		conn.FilePath = values[next]
		next++
	case "libsql":
		conn.URL = values[next]
		conn.AuthToken = values[next+1]
		next += 2
	}

	if m.currentRole == RoleDestination && next < len(values) {
		m.currentEnv.ModelsPath = values[next]
	}

	return nil
}

// Message types for async operations

type connectionTestResultMsg struct {
	err error
}

func (m Model) testConnection() tea.Cmd {
	conn := m.currentEnv.Source
	if m.currentRole == RoleDestination {
		conn = m.currentEnv.Destination
	}
	return func() tea.Msg {
		err := TestConnection(BuildConnectionString(conn), conn.DatabaseType)
		return connectionTestResultMsg{err: err}
	}
}

type fileCreationResultMsg struct {
	result *InitResult
	err    error
}

func (m Model) createFiles() tea.Cmd {
	environments := m.environments
	return func() tea.Msg {
		result, err := GenerateFiles(environments)
		return fileCreationResultMsg{result: result, err: err}
	}
}

type existingConfigMsg struct {
	path     string
	envNames []string
}

func checkForExistingConfig() tea.Msg {
	configPath := "dbporter.toml"
	envNames, err := getEnvironmentNames(configPath)
	if err == nil && len(envNames) > 0 {
		return existingConfigMsg{path: configPath, envNames: envNames}
	}
	return existingConfigMsg{}
}

func getEnvironmentNames(configPath string) ([]string, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Look for [environments.NAME] sections
	var envNames []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[environments.") && strings.HasSuffix(line, "]") {
			envName := strings.TrimPrefix(line, "[environments.")
			envName = strings.TrimSuffix(envName, "]")
			envNames = append(envNames, envName)
		}
	}

	return envNames, nil
}

// View renderers

func (m Model) renderWelcome() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString("Welcome! Let's set up dbporter for your project.\n\n")
	b.WriteString(renderInfo("This wizard will help you:\n" +
		"  • Configure the source and destination connections\n" +
		"  • Point dbporter at your model manifest\n" +
		"  • Create environment-specific config files"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderCheckExisting() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Found existing configuration!"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Config: %s\n", m.existingConfigPath))
	b.WriteString(fmt.Sprintf("Environments: %s\n", strings.Join(m.existingEnvNames, ", ")))
	b.WriteString("\n")
	b.WriteString(renderInfo("New environments will be added next to the\nexisting ones."))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderDatabaseType() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader(roleLabel(m.currentRole) + " database"))
	b.WriteString("\n\n")
	if m.currentRole == RoleSource {
		b.WriteString(labelStyle.Render("Which engine holds the data to migrate?"))
	} else {
		b.WriteString(labelStyle.Render("Which engine should receive the data?"))
	}
	b.WriteString("\n\n")

	for i, dbType := range DatabaseTypes {
		line := fmt.Sprintf("%d. %s (%s)", i+1, dbType.DisplayName, dbType.Description)
		b.WriteString(renderOption(i == m.dbTypeIndex, line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderConnectionDetails() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader(roleLabel(m.currentRole) + " connection details"))
	b.WriteString("\n\n")

	for i, input := range m.inputs {
		label := input.Placeholder
		if i == m.focusIndex {
			b.WriteString(selectedStyle.Render(iconArrow + " " + label + ":"))
		} else {
			b.WriteString(labelStyle.Render("  " + label + ":"))
		}
		b.WriteString("\n  ")
		b.WriteString(input.View())
		b.WriteString("\n\n")
	}

	if len(m.errors) > 0 {
		for _, errMsg := range m.errors {
			b.WriteString(renderError(errMsg))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(renderStatusBar("↑/↓ or Tab: navigate  Enter: test connection  Ctrl+C: quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderTestConnection() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Testing Connection"))
	b.WriteString("\n\n")

	if m.testingConnection {
		b.WriteString(infoStyle.Render(iconSpinner + " Testing connection..."))
	} else if m.connectionTestResult == "success" {
		b.WriteString(renderSuccess("Connection successful!"))
	} else if m.connectionTestResult == "failed" {
		b.WriteString(renderError("Connection failed"))
		b.WriteString("\n\n")
		if m.connectionError != nil {
			b.WriteString(errorStyle.Render("Error: " + m.connectionError.Error()))
		}
		b.WriteString("\n\n")
		b.WriteString("What would you like to do?\n\n")
		b.WriteString(renderOption(m.retryChoice == 0, "Retry connection"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 1, "Edit connection details"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 2, "Keep anyway"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 3, "Quit wizard"))
		b.WriteString("\n")
	}

	b.WriteString("\n\n")
	if m.connectionTestResult == "failed" {
		b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	} else {
		b.WriteString(renderStatusBar("Press Enter to continue"))
	}

	return borderStyle.Render(b.String())
}

func (m Model) renderAddAnother() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Add Another Environment?"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("✓ Added environment: %s\n\n", m.environments[len(m.environments)-1].Name))
	b.WriteString("Press Enter to review and save, or restart the wizard\nlater to add more environments (e.g., staging, production).\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderSummary() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Summary"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Ready to create configuration for %d environment(s):\n\n", len(m.environments)))

	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • %s (%s → %s)\n", env.Name,
			env.Source.DatabaseType, env.Destination.DatabaseType))
	}

	b.WriteString("\n")
	b.WriteString("This will create:\n")
	b.WriteString("  • dbporter.toml\n")
	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • .env.%s\n", env.Name))
	}
	b.WriteString("  • Update .gitignore\n")

	b.WriteString("\n")
	b.WriteString(renderStatusBar("Press Enter to create files, q to quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderCreating() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(infoStyle.Render(iconSpinner + " Creating configuration..."))

	return borderStyle.Render(b.String())
}

func (m Model) renderDone() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Setup complete!"))
	b.WriteString("\n\n")

	if m.result != nil {
		b.WriteString("Created:\n")
		b.WriteString(fmt.Sprintf("  %s %s\n", iconSuccess, m.result.ConfigPath))
		for _, envFile := range m.result.EnvFiles {
			b.WriteString(fmt.Sprintf("  %s %s\n", iconSuccess, envFile))
		}
		if m.result.GitignoreUpdated {
			b.WriteString(fmt.Sprintf("  %s .gitignore updated\n", iconSuccess))
		}
	}

	b.WriteString("\n")
	b.WriteString("Next steps:\n")
	b.WriteString("  1. Describe your record types in the model manifest\n")
	b.WriteString("  2. Run: dbporter analyze --output plan.json\n")
	b.WriteString("  3. Run: dbporter migrate plan.json\n")

	b.WriteString("\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderError() string {
	var b strings.Builder

	b.WriteString(renderHeader("dbporter Init Wizard"))
	b.WriteString("\n\n")
	b.WriteString(renderError("An error occurred"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

func roleLabel(role Role) string {
	if role == RoleSource {
		return "Source"
	}
	return "Destination"
}

// Run starts the wizard
func Run(force bool) error {
	p := tea.NewProgram(New(force))
	_, err := p.Run()
	return err
}
