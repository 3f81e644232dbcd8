package dict

import (
	"fmt"
	"sync"
)

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in dictionary covering the common project and the
// piloting surface of the supported products. The table is immutable; callers
// needing other commands build their own via NewTable.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(defaultProjects())
		if err != nil {
			panic(fmt.Sprintf("dict: built-in table invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Project ids on the wire. The common project is shared by every product.
const (
	ProjectCommon      uint8 = 0
	ProjectARDrone3    uint8 = 1
	ProjectJumpingSumo uint8 = 3
)

func defaultProjects() []Project {
	return []Project{
		{
			ID:   ProjectCommon,
			Name: "common",
			Classes: []Class{
				{
					ID:   2,
					Name: "Settings",
					Commands: []Command{
						{Name: "AllSettings"},
						{Name: "Reset"},
					},
				},
				{
					ID:   3,
					Name: "SettingsState",
					Commands: []Command{
						{Name: "AllSettingsChanged"},
						{Name: "ResetChanged"},
						{Name: "ProductNameChanged", Args: []ArgSpec{
							{Name: "name", Type: ArgString},
						}},
						{Name: "ProductVersionChanged", Args: []ArgSpec{
							{Name: "software", Type: ArgString},
							{Name: "hardware", Type: ArgString},
						}},
					},
				},
				{
					ID:   4,
					Name: "Common",
					Commands: []Command{
						{Name: "AllStates"},
						{Name: "CurrentDate", Args: []ArgSpec{
							{Name: "date", Type: ArgString},
						}},
						{Name: "CurrentTime", Args: []ArgSpec{
							{Name: "time", Type: ArgString},
						}},
						{Name: "Reboot"},
					},
				},
				{
					ID:   5,
					Name: "CommonState",
					Commands: []Command{
						{Name: "AllStatesChanged"},
						{Name: "BatteryStateChanged", Args: []ArgSpec{
							{Name: "percent", Type: ArgU8},
						}},
						{Name: "MassStorageStateListChanged", List: ListMap, Args: []ArgSpec{
							{Name: "mass_storage_id", Type: ArgU8},
							{Name: "name", Type: ArgString},
						}},
						{Name: "MassStorageInfoStateListChanged", List: ListMap, Args: []ArgSpec{
							{Name: "mass_storage_id", Type: ArgU8},
							{Name: "size", Type: ArgU32},
							{Name: "used_size", Type: ArgU32},
							{Name: "plugged", Type: ArgU8},
							{Name: "full", Type: ArgU8},
							{Name: "internal", Type: ArgU8},
						}},
						{Name: "CurrentDateChanged", Args: []ArgSpec{
							{Name: "date", Type: ArgString},
						}},
						{Name: "CurrentTimeChanged", Args: []ArgSpec{
							{Name: "time", Type: ArgString},
						}},
					},
				},
			},
		},
		{
			ID:   ProjectARDrone3,
			Name: "ARDrone3",
			Classes: []Class{
				{
					ID:   0,
					Name: "Piloting",
					Commands: []Command{
						{Name: "FlatTrim"},
						{Name: "TakeOff"},
						{Name: "PCMD", Delivery: DeliveryBestEffort, Args: []ArgSpec{
							{Name: "flag", Type: ArgU8},
							{Name: "roll", Type: ArgI8},
							{Name: "pitch", Type: ArgI8},
							{Name: "yaw", Type: ArgI8},
							{Name: "gaz", Type: ArgI8},
							{Name: "timestampAndPsi", Type: ArgU32},
						}},
						{Name: "Landing"},
						{Name: "Emergency", Delivery: DeliveryLowLatency},
					},
				},
				{
					ID:   4,
					Name: "PilotingState",
					Commands: []Command{
						{Name: "FlatTrimChanged"},
						{Name: "FlyingStateChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "AlertStateChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "NavigateHomeStateChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
							{Name: "reason", Type: ArgEnum},
						}},
						{Name: "PositionChanged", Args: []ArgSpec{
							{Name: "latitude", Type: ArgDouble},
							{Name: "longitude", Type: ArgDouble},
							{Name: "altitude", Type: ArgDouble},
						}},
						{Name: "SpeedChanged", Args: []ArgSpec{
							{Name: "speedX", Type: ArgFloat},
							{Name: "speedY", Type: ArgFloat},
							{Name: "speedZ", Type: ArgFloat},
						}},
						{Name: "AttitudeChanged", Args: []ArgSpec{
							{Name: "roll", Type: ArgFloat},
							{Name: "pitch", Type: ArgFloat},
							{Name: "yaw", Type: ArgFloat},
						}},
						{Name: "AutoTakeOffModeChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgU8},
						}},
						{Name: "AltitudeChanged", Args: []ArgSpec{
							{Name: "altitude", Type: ArgDouble},
						}},
					},
				},
				{
					ID:   21,
					Name: "MediaStreaming",
					Commands: []Command{
						{Name: "VideoEnable", Args: []ArgSpec{
							{Name: "enable", Type: ArgU8},
						}},
					},
				},
				{
					ID:   22,
					Name: "MediaStreamingState",
					Commands: []Command{
						{Name: "VideoEnableChanged", Args: []ArgSpec{
							{Name: "enabled", Type: ArgEnum},
						}},
					},
				},
			},
		},
		{
			ID:   ProjectJumpingSumo,
			Name: "JumpingSumo",
			Classes: []Class{
				{
					ID:   0,
					Name: "Piloting",
					Commands: []Command{
						{Name: "PCMD", Delivery: DeliveryBestEffort, Args: []ArgSpec{
							{Name: "flag", Type: ArgU8},
							{Name: "speed", Type: ArgI8},
							{Name: "turn", Type: ArgI8},
						}},
						{Name: "Posture", Args: []ArgSpec{
							{Name: "type", Type: ArgEnum},
						}},
						{Name: "AddCapOffset", Args: []ArgSpec{
							{Name: "offset", Type: ArgFloat},
						}},
					},
				},
				{
					ID:   1,
					Name: "PilotingState",
					Commands: []Command{
						{Name: "PostureChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "AlertStateChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "SpeedChanged", Args: []ArgSpec{
							{Name: "speed", Type: ArgI8},
							{Name: "realSpeed", Type: ArgI16},
						}},
					},
				},
				{
					ID:   2,
					Name: "Animations",
					Commands: []Command{
						{Name: "JumpStop"},
						{Name: "JumpCancel"},
						{Name: "JumpLoad"},
						{Name: "Jump", Args: []ArgSpec{
							{Name: "type", Type: ArgEnum},
						}},
					},
				},
				{
					ID:   3,
					Name: "AnimationsState",
					Commands: []Command{
						{Name: "JumpLoadChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "JumpTypeChanged", Args: []ArgSpec{
							{Name: "state", Type: ArgEnum},
						}},
						{Name: "JumpMotorProblemChanged", Args: []ArgSpec{
							{Name: "error", Type: ArgEnum},
						}},
					},
				},
				{
					ID:   18,
					Name: "MediaStreaming",
					Commands: []Command{
						{Name: "VideoEnable", Args: []ArgSpec{
							{Name: "enable", Type: ArgU8},
						}},
					},
				},
				{
					ID:   19,
					Name: "MediaStreamingState",
					Commands: []Command{
						{Name: "VideoEnableChanged", Args: []ArgSpec{
							{Name: "enabled", Type: ArgEnum},
						}},
					},
				},
				{
					ID:   11,
					Name: "NetworkState",
					Commands: []Command{
						{Name: "WifiScanListChanged", List: ListMap, Args: []ArgSpec{
							{Name: "ssid", Type: ArgString},
							{Name: "rssi", Type: ArgI16},
							{Name: "band", Type: ArgEnum},
							{Name: "channel", Type: ArgU8},
						}},
						{Name: "AllWifiScanChanged"},
					},
				},
				{
					ID:   12,
					Name: "AudioSettings",
					Commands: []Command{
						{Name: "MasterVolume", Args: []ArgSpec{
							{Name: "volume", Type: ArgU8},
						}},
						{Name: "Theme", Args: []ArgSpec{
							{Name: "theme", Type: ArgEnum},
						}},
					},
				},
			},
		},
	}
}
