package wizard

import (
	"github.com/charmbracelet/bubbles/textinput"
)

// WizardState is the screen the wizard shows.
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

// WizardModel is the Bubble Tea model of the init wizard.
type WizardModel struct {
	state WizardState
	dir   string
	opts  Options

	existingConfigPath string
	existingEnvNames   []string

	currentEnv   Environment
	environments []Environment

	testingConnection    bool
	connectionTestResult string
	connectionError      error
	retryChoice          int

	addAnotherChoice int // 0=add another, 1=finish

	fields     []field
	inputs     []textinput.Model
	focusIndex int

	dbTypeIndex int

	errors map[string]string

	result *Result
	err    error

	width  int
	height int
}

// Environment is one named database connection collected by the wizard.
type Environment struct {
	Name         string
	Description  string
	DatabaseType string // "postgres", "sqlite", "libsql"

	// PostgreSQL
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string

	// SQLite
	FilePath string

	// libSQL
	URL       string
	AuthToken string
}

// Options controls what Generate writes besides the configuration.
type Options struct {
	// Force overwrites an existing rowplane.toml instead of merging into it.
	Force bool
	// Example writes a sample migration with its CSV data.
	Example bool
}

// Result lists what Generate created or changed, relative to the project
// directory.
type Result struct {
	ConfigPath       string
	ConfigCreated    bool
	EnvFiles         []string
	Dirs             []string
	ExampleFiles     []string
	DatabaseFiles    []string
	GitignoreUpdated bool
	EnvExampleUpdate bool
}

// DatabaseType is one entry of the database menu.
type DatabaseType struct {
	ID          string
	DisplayName string
	Description string
	Icon        string
}

// DatabaseTypes lists the databases a project can import into.
var DatabaseTypes = []DatabaseType{
	{
		ID:          "sqlite",
		DisplayName: "SQLite",
		Description: "single file, good for trial runs",
		Icon:        "📁",
	},
	{
		ID:          "postgres",
		DisplayName: "PostgreSQL",
		Description: "concurrent imports with several workers",
		Icon:        "🐘",
	},
	{
		ID:          "libsql",
		DisplayName: "libSQL/Turso",
		Description: "remote SQLite",
		Icon:        "🌐",
	},
}
