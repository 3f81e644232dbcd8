// Package dict resolves symbolic command names to wire identifiers and
// argument schemas, and encodes/decodes command payloads against them.
//
// The table is read-only after construction and shared by all connections.
// Table content is external data; NewTable accepts any project set, and
// Default ships the curated subset this repository exercises.
package dict

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("dict: unknown command")
	ErrDuplicateEntry = errors.New("dict: duplicate table entry")
)

// ListKind tags how the state store folds repeated occurrences of a command.
// The wire payload of one occurrence is identical for all kinds.
type ListKind uint8

const (
	ListNone ListKind = iota
	ListItems
	ListMap
)

// Delivery is the channel class a command is sent on.
type Delivery uint8

const (
	DeliveryAck Delivery = iota
	DeliveryBestEffort
	DeliveryLowLatency
)

// ArgSpec declares one positional argument of a command.
type ArgSpec struct {
	Name string
	Type ArgType
}

// Schema is the resolved identity and argument layout of one command.
type Schema struct {
	Project   string
	Class     string
	Command   string
	ProjectID uint8
	ClassID   uint8
	CommandID uint16
	List      ListKind
	Delivery  Delivery
	Args      []ArgSpec
}

// Name returns the command in project.class.command notation.
func (s *Schema) Name() string {
	return s.Project + "." + s.Class + "." + s.Command
}

// NotFoundError reports an unresolvable triplet; errors.Is matches
// ErrUnknownCommand.
type NotFoundError struct {
	Project   string
	Class     string
	Command   string
	ProjectID uint8
	ClassID   uint8
	CommandID uint16
	ByID      bool
}

func (e NotFoundError) Error() string {
	if e.ByID {
		return fmt.Sprintf("dict: unknown command id %d.%d.%d", e.ProjectID, e.ClassID, e.CommandID)
	}
	return fmt.Sprintf("dict: unknown command %s.%s.%s", e.Project, e.Class, e.Command)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// Command declares one command within a class; its wire id is its position.
type Command struct {
	Name     string
	List     ListKind
	Delivery Delivery
	Args     []ArgSpec
}

// Class declares one class within a project.
type Class struct {
	ID       uint8
	Name     string
	Commands []Command
}

// Project declares one project and its classes.
type Project struct {
	ID      uint8
	Name    string
	Classes []Class
}

// Table resolves commands by symbolic name and by numeric identifier.
type Table struct {
	byName map[string]*Schema
	byID   map[uint32]*Schema
}

func nameKey(project, class, command string) string {
	return project + "." + class + "." + command
}

func idKey(projectID, classID uint8, commandID uint16) uint32 {
	return uint32(projectID)<<24 | uint32(classID)<<16 | uint32(commandID)
}

// NewTable builds a resolution table from project declarations. Every triplet
// must map to exactly one identifier and vice versa.
func NewTable(projects []Project) (*Table, error) {
	t := &Table{
		byName: make(map[string]*Schema),
		byID:   make(map[uint32]*Schema),
	}
	for _, proj := range projects {
		for _, cls := range proj.Classes {
			for i, cmd := range cls.Commands {
				if cmd.List == ListMap && len(cmd.Args) == 0 {
					return nil, fmt.Errorf("dict: map command %s.%s.%s has no key argument",
						proj.Name, cls.Name, cmd.Name)
				}
				s := &Schema{
					Project:   proj.Name,
					Class:     cls.Name,
					Command:   cmd.Name,
					ProjectID: proj.ID,
					ClassID:   cls.ID,
					CommandID: uint16(i),
					List:      cmd.List,
					Delivery:  cmd.Delivery,
					Args:      append([]ArgSpec(nil), cmd.Args...),
				}
				nk := nameKey(s.Project, s.Class, s.Command)
				ik := idKey(s.ProjectID, s.ClassID, s.CommandID)
				if _, ok := t.byName[nk]; ok {
					return nil, fmt.Errorf("%w: name %s", ErrDuplicateEntry, nk)
				}
				if _, ok := t.byID[ik]; ok {
					return nil, fmt.Errorf("%w: id %d.%d.%d", ErrDuplicateEntry, s.ProjectID, s.ClassID, s.CommandID)
				}
				t.byName[nk] = s
				t.byID[ik] = s
			}
		}
	}
	return t, nil
}

// ByName resolves a symbolic triplet.
func (t *Table) ByName(project, class, command string) (*Schema, error) {
	s, ok := t.byName[nameKey(project, class, command)]
	if !ok {
		return nil, NotFoundError{Project: project, Class: class, Command: command}
	}
	return s, nil
}

// ByID resolves a numeric triplet.
func (t *Table) ByID(projectID, classID uint8, commandID uint16) (*Schema, error) {
	s, ok := t.byID[idKey(projectID, classID, commandID)]
	if !ok {
		return nil, NotFoundError{ProjectID: projectID, ClassID: classID, CommandID: commandID, ByID: true}
	}
	return s, nil
}
