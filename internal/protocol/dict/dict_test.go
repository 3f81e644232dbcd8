package dict

import (
	"errors"
	"testing"
)

func testProjects() []Project {
	return []Project{
		{
			ID:   7,
			Name: "rover",
			Classes: []Class{
				{
					ID:   0,
					Name: "Piloting",
					Commands: []Command{
						{Name: "Stop"},
						{Name: "Move", Delivery: DeliveryLowLatency, Args: []ArgSpec{
							{Name: "flag", Type: ArgU8},
							{Name: "speed", Type: ArgI8},
						}},
					},
				},
				{
					ID:   1,
					Name: "PilotingState",
					Commands: []Command{
						{Name: "MovingChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
					},
				},
			},
		},
	}
}

func TestTableResolvesBothDirections(t *testing.T) {
	table, err := NewTable(testProjects())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	byName, err := table.ByName("rover", "Piloting", "Move")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if byName.ProjectID != 7 || byName.ClassID != 0 || byName.CommandID != 1 {
		t.Errorf("ByName ids = (%d, %d, %d), want (7, 0, 1)",
			byName.ProjectID, byName.ClassID, byName.CommandID)
	}
	if byName.Delivery != DeliveryLowLatency {
		t.Errorf("Delivery = %v, want %v", byName.Delivery, DeliveryLowLatency)
	}

	byID, err := table.ByID(7, 0, 1)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if byID != byName {
		t.Errorf("ByID returned a different schema than ByName")
	}
}

func TestCommandIDsFollowDeclarationOrder(t *testing.T) {
	table, err := NewTable(testProjects())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	stop, err := table.ByName("rover", "Piloting", "Stop")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if stop.CommandID != 0 {
		t.Errorf("Stop CommandID = %d, want 0", stop.CommandID)
	}
}

func TestUnknownCommandIsNotFound(t *testing.T) {
	table, err := NewTable(testProjects())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if _, err := table.ByName("rover", "Piloting", "Nope"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("ByName unknown command err = %v, want ErrUnknownCommand", err)
	}
	_, err = table.ByID(7, 9, 0)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("ByID unknown class err = %v, want ErrUnknownCommand", err)
	}
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("ByID err is not a NotFoundError: %v", err)
	}
	if nf.ProjectID != 7 || nf.ClassID != 9 {
		t.Errorf("NotFoundError ids = (%d, %d), want (7, 9)", nf.ProjectID, nf.ClassID)
	}
}

func TestNewTableRejectsDuplicateNames(t *testing.T) {
	projects := testProjects()
	cmds := projects[0].Classes[0].Commands
	projects[0].Classes[0].Commands = append(cmds, Command{Name: "Stop"})
	if _, err := NewTable(projects); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("NewTable with duplicate command name err = %v, want ErrDuplicateEntry", err)
	}
}

func TestNewTableRejectsDuplicateClassIDs(t *testing.T) {
	projects := testProjects()
	projects[0].Classes[1].ID = 0
	if _, err := NewTable(projects); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("NewTable with duplicate class id err = %v, want ErrDuplicateEntry", err)
	}
}

func TestNewTableRejectsKeylessMapCommand(t *testing.T) {
	projects := testProjects()
	projects[0].Classes[1].Commands = append(projects[0].Classes[1].Commands,
		Command{Name: "BadList", List: ListMap})
	if _, err := NewTable(projects); err == nil {
		t.Error("NewTable accepted a map command with no key argument")
	}
}

func TestSchemaName(t *testing.T) {
	table, err := NewTable(testProjects())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	s, err := table.ByName("rover", "PilotingState", "MovingChanged")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if got := s.Name(); got != "rover.PilotingState.MovingChanged" {
		t.Errorf("Name() = %q", got)
	}
}

func TestDefaultResolvesDeviceSurface(t *testing.T) {
	table := Default()
	triplets := []struct {
		project, class, command string
	}{
		{"common", "Settings", "AllSettings"},
		{"common", "SettingsState", "AllSettingsChanged"},
		{"common", "Common", "AllStates"},
		{"common", "Common", "CurrentDate"},
		{"common", "Common", "CurrentTime"},
		{"common", "CommonState", "AllStatesChanged"},
		{"common", "CommonState", "BatteryStateChanged"},
		{"ARDrone3", "Piloting", "TakeOff"},
		{"ARDrone3", "Piloting", "Landing"},
		{"ARDrone3", "Piloting", "Emergency"},
		{"ARDrone3", "Piloting", "PCMD"},
		{"ARDrone3", "MediaStreaming", "VideoEnable"},
		{"JumpingSumo", "Piloting", "PCMD"},
		{"JumpingSumo", "Piloting", "Posture"},
		{"JumpingSumo", "Animations", "Jump"},
		{"JumpingSumo", "MediaStreaming", "VideoEnable"},
	}
	for _, tc := range triplets {
		s, err := table.ByName(tc.project, tc.class, tc.command)
		if err != nil {
			t.Fatalf("ByName(%s.%s.%s): %v", tc.project, tc.class, tc.command, err)
		}
		back, err := table.ByID(s.ProjectID, s.ClassID, s.CommandID)
		if err != nil {
			t.Fatalf("ByID(%d, %d, %d): %v", s.ProjectID, s.ClassID, s.CommandID, err)
		}
		if back != s {
			t.Errorf("%s.%s.%s does not round-trip through ids", tc.project, tc.class, tc.command)
		}
	}
}

func TestDefaultListKinds(t *testing.T) {
	table := Default()
	s, err := table.ByName("common", "CommonState", "MassStorageStateListChanged")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if s.List != ListMap {
		t.Errorf("MassStorageStateListChanged List = %v, want ListMap", s.List)
	}
	s, err = table.ByName("ARDrone3", "PilotingState", "FlyingStateChanged")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if s.List != ListNone {
		t.Errorf("FlyingStateChanged List = %v, want ListNone", s.List)
	}
}
