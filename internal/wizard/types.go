package wizard

import (
	"github.com/charmbracelet/bubbles/textinput"
)

// WizardState represents the current step in the wizard flow
type WizardState int

const (
	StateWelcome WizardState = iota
	StateCheckExisting
	StateDatabaseType
	StateConnectionDetails
	StateTestConnection
	StateAddAnother
	StateSummary
	StateCreating
	StateDone
	StateError
)

// Role identifies which side of the migration a connection belongs to
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// ConnectionInput holds user input for one database connection
type ConnectionInput struct {
	Role         Role
	DatabaseType string // "postgres", "mysql", "sqlite", "libsql"

	// Server-based engines
	Host     string
	Port     string
	Database string
	User     string
	Password string

	// SQLite
	FilePath string

	// libSQL
	URL       string
	AuthToken string
}

// EnvironmentInput holds user input for a single environment: a name
// plus a source and a destination connection
type EnvironmentInput struct {
	Name        string
	Source      ConnectionInput
	Destination ConnectionInput
	ModelsPath  string
}

// Model holds the state for the Bubble Tea wizard
type Model struct {
	state WizardState
	force bool

	// Existing config detection
	existingConfigPath string
	existingEnvNames   []string

	// Environment currently being configured; connections are gathered
	// source first, then destination
	currentEnv   EnvironmentInput
	currentRole  Role
	environments []EnvironmentInput

	// Connection testing
	testingConnection    bool
	connectionTestResult string
	connectionError      error
	retryChoice          int // 0=retry, 1=edit, 2=skip test, 3=quit

	// Input fields
	inputs     []textinput.Model
	focusIndex int

	// Database type selection
	dbTypeIndex int

	// Validation
	errors map[string]string

	// Final output
	result *InitResult
	err    error

	width  int
	height int
}

// InitResult contains the outcome of running the wizard
type InitResult struct {
	ConfigPath       string
	ConfigCreated    bool
	ConfigUpdated    bool
	EnvFiles         []string
	GitignoreUpdated bool
}

// DatabaseType represents a database option
type DatabaseType struct {
	ID          string
	DisplayName string
	Description string
}

// Available database types
var DatabaseTypes = []DatabaseType{
	{
		ID:          "postgres",
		DisplayName: "PostgreSQL",
		Description: "common migration destination",
	},
	{
		ID:          "mysql",
		DisplayName: "MySQL / MariaDB",
		Description: "common migration source",
	},
	{
		ID:          "sqlite",
		DisplayName: "SQLite",
		Description: "simple, file-based",
	},
	{
		ID:          "libsql",
		DisplayName: "libSQL/Turso",
		Description: "edge database",
	},
}
