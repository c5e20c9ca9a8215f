package callback

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentbridge/core/internal/validator"
)

const projectCommandDir = ".claude/commands"

// ProjectCommand is one slash-command markdown file under
// <working_directory>/.claude/commands, keyed by its filename stem.
type ProjectCommand struct {
	Name        string
	FilePath    string
	Description string
}

// CallbackData returns the pcmd:<name> wire form for a keyboard button.
func (c ProjectCommand) CallbackData() string {
	return Build(ActionProjectCommand, c.Name)
}

// ListProjectCommands scans <workingDirectory>/.claude/commands/*.md,
// resolving the directory through validator.ValidatePath so a
// working_directory outside the approved root can never be read. Results
// are sorted by name, matching get_project_commands.
func ListProjectCommands(workingDirectory, approvedRoot string) ([]ProjectCommand, error) {
	ok, resolvedDir, err := validator.ValidatePath(filepath.Join(workingDirectory, projectCommandDir), approvedRoot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("callback: %s escapes approved directory", projectCommandDir)
	}

	entries, err := os.ReadDir(resolvedDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var commands []ProjectCommand
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		path := filepath.Join(resolvedDir, entry.Name())
		desc, err := extractDescription(path, name)
		if err != nil {
			return nil, err
		}
		commands = append(commands, ProjectCommand{Name: name, FilePath: path, Description: desc})
	}

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands, nil
}

// extractDescription reads the first non-blank line of a command file and
// strips any leading markdown heading markers, falling back to a
// title-cased version of the filename when the file is empty.
func extractDescription(path, fallbackName string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#")
		return strings.TrimSpace(line), nil
	}
	return strings.Title(strings.ReplaceAll(fallbackName, "_", " ")), nil
}

// FindCommandByName returns the command matching name, or false if none
// of the listed commands has that name.
func FindCommandByName(commands []ProjectCommand, name string) (ProjectCommand, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return ProjectCommand{}, false
}

// ReadCommandContent returns the command file's UTF-8 text body, used
// verbatim as the agent prompt.
func ReadCommandContent(c ProjectCommand) (string, error) {
	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsProjectCommandCallback reports whether data names a pcmd: button.
func IsProjectCommandCallback(data string) bool {
	action, _, _ := Parse(data)
	return action == ActionProjectCommand
}
