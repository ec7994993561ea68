package wizard

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rowplane/rowplane/internal/config"
)

const title = "rowplane init"

const (
	hintContinue = "Press Enter to continue, q to quit"
	hintMenu     = "↑/↓: navigate  Enter: select  q: quit"
	hintExit     = "Press Enter to exit"
)

// View renders the current screen.
func (m WizardModel) View() string {
	var section, body, hint string

	switch m.state {
	case StateWelcome:
		body, hint = m.welcomeBody(), hintContinue
	case StateCheckExisting:
		body, hint = m.existingBody(), hintContinue
	case StateDatabaseType:
		section, body, hint = "Destination database", m.databaseTypeBody(), hintMenu
	case StateConnectionDetails:
		section, body = "Connection details", m.connectionBody()
		hint = "↑/↓ or Tab: navigate  Enter: test connection  ctrl+c: quit"
	case StateTestConnection:
		section, body = "Testing connection", m.testBody()
		hint = "Press Enter to continue"
		if m.connectionTestResult == "failed" {
			hint = hintMenu
		}
	case StateAddAnother:
		section, body, hint = "Add another environment?", m.addAnotherBody(), hintMenu
	case StateSummary:
		section, body, hint = "Summary", m.summaryBody(), "Press Enter to create files, q to quit"
	case StateCreating:
		body = infoStyle.Render(iconSpinner + " Creating project files...")
	case StateDone:
		body, hint = m.doneBody(), hintExit
	case StateError:
		body, hint = m.errorBody(), hintExit
	default:
		return "Unknown state"
	}

	return screen(section, body, hint)
}

// screen frames body with the title, an optional section header and a key
// hint.
func screen(section, body, hint string) string {
	var b strings.Builder
	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	if section != "" {
		b.WriteString(renderSectionHeader(section))
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimRight(body, "\n"))
	if hint != "" {
		b.WriteString("\n\n")
		b.WriteString(renderStatusBar(hint))
	}
	return borderStyle.Render(b.String())
}

func (m WizardModel) welcomeBody() string {
	return "Welcome! Let's set up rowplane for your project.\n\n" +
		renderInfo("This wizard will:\n"+
			"  • Configure the databases you import into\n"+
			"  • Store their connection strings in .env files\n"+
			"  • Create the migrations/ and pipelines/ directories")
}

func (m WizardModel) existingBody() string {
	var b strings.Builder
	b.WriteString(renderSuccess("Found existing configuration!"))
	fmt.Fprintf(&b, "\n\nConfig: %s\nEnvironments: %s\n\n", m.existingConfigPath, strings.Join(m.existingEnvNames, ", "))
	b.WriteString(renderInfo("Environments you add are merged into the existing file.\n" +
		"Re-using a name replaces its connection."))
	return b.String()
}

func (m WizardModel) databaseTypeBody() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Where should imported records and identity maps live?"))
	b.WriteString("\n\n")
	for i, t := range DatabaseTypes {
		b.WriteString(renderOption(i == m.dbTypeIndex, fmt.Sprintf("%d. %s %s (%s)", i+1, t.Icon, t.DisplayName, t.Description)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m WizardModel) connectionBody() string {
	var b strings.Builder
	t := DatabaseTypes[m.dbTypeIndex]
	fmt.Fprintf(&b, "Database: %s %s\n\n", t.Icon, t.DisplayName)

	for i, input := range m.inputs {
		b.WriteString(renderOption(i == m.focusIndex, input.Placeholder+":"))
		b.WriteString("\n  " + input.View() + "\n\n")
	}

	keys := make([]string, 0, len(m.errors))
	for k := range m.errors {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(renderError(m.errors[k]) + "\n")
	}

	if m.currentEnv.DatabaseType == "sqlite" {
		b.WriteString(renderInfo("Relative paths are resolved from the directory rowplane runs in."))
	}
	return b.String()
}

func (m WizardModel) testBody() string {
	switch {
	case m.testingConnection:
		return infoStyle.Render(iconSpinner + " Testing connection...")
	case m.connectionTestResult == "success":
		return renderSuccess("Connection successful!") + "\n\nConnected to: " + m.currentEnv.Name
	case m.connectionTestResult != "failed":
		return ""
	}

	var b strings.Builder
	b.WriteString(renderError("Connection failed"))
	if m.connectionError != nil {
		b.WriteString("\n\n" + errorStyle.Render("Error: "+m.connectionError.Error()))
	}
	b.WriteString("\n\nWhat would you like to do?\n\n")
	for i, option := range []string{"Retry connection", "Edit connection details", "Quit wizard"} {
		b.WriteString(renderOption(m.retryChoice == i, option) + "\n")
	}
	return b.String()
}

func (m WizardModel) addAnotherBody() string {
	var b strings.Builder
	if n := len(m.environments); n > 0 {
		b.WriteString(renderSuccess("Added environment: " + m.environments[n-1].Name))
		b.WriteString("\n\n")
	}
	b.WriteString(renderOption(m.addAnotherChoice == 0, "Add another environment (e.g. staging, production)") + "\n")
	b.WriteString(renderOption(m.addAnotherChoice == 1, "Finish"))
	return b.String()
}

func (m WizardModel) summaryBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ready to write configuration for %d environment(s):\n\n", len(m.environments))
	for _, env := range m.environments {
		fmt.Fprintf(&b, "  • %s (%s)\n", env.Name, env.DatabaseType)
	}

	files := []string{config.FileName}
	for _, env := range m.environments {
		files = append(files, ".env."+env.Name)
	}
	files = append(files, "migrations/ and pipelines/")
	if m.opts.Example {
		files = append(files, "migrations/example.yml")
	}
	files = append(files, ".env.example and .gitignore")

	b.WriteString("\nThis will create or update:\n")
	for _, f := range files {
		b.WriteString("  • " + f + "\n")
	}
	return b.String()
}

func (m WizardModel) doneBody() string {
	return renderSuccess("Setup complete!") + "\n\n" + resultLines(m.result) +
		"\nNext steps:\n" +
		"  1. Describe a migration in migrations/<id>.yml\n" +
		"  2. Run: rowplane validate\n" +
		"  3. Run: rowplane import --all\n"
}

func (m WizardModel) errorBody() string {
	body := renderError("An error occurred")
	if m.err != nil {
		body += "\n\n" + errorStyle.Render(m.err.Error())
	}
	return body
}

// resultLines lists the files a Generate call touched, one per line.
func resultLines(result *Result) string {
	if result == nil {
		return ""
	}

	var lines []string
	if result.ConfigCreated {
		lines = append(lines, result.ConfigPath+" created")
	} else {
		lines = append(lines, result.ConfigPath+" updated")
	}
	lines = append(lines, result.EnvFiles...)
	for _, d := range result.Dirs {
		lines = append(lines, d+"/")
	}
	lines = append(lines, result.ExampleFiles...)
	for _, f := range result.DatabaseFiles {
		lines = append(lines, f+" (SQLite database)")
	}
	if result.EnvExampleUpdate {
		lines = append(lines, ".env.example updated")
	}
	if result.GitignoreUpdated {
		lines = append(lines, ".gitignore updated")
	}

	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "  %s %s\n", iconCheck, l)
	}
	return b.String()
}
