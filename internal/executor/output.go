package executor

import (
	"fmt"
	"slices"
	"strings"
)

// commandArgs returns the ipmitool subcommand for cmd.
func commandArgs(cmd Command) ([]string, error) {
	switch cmd.Kind {
	case PowerOn:
		return []string{"chassis", "power", "on"}, nil
	case PowerOff:
		if cmd.Force {
			return []string{"chassis", "power", "off"}, nil
		}
		return []string{"chassis", "power", "soft"}, nil
	case PowerReset:
		return []string{"chassis", "power", "reset"}, nil
	case PowerStatus:
		return []string{"chassis", "power", "status"}, nil
	case Health:
		return []string{"chassis", "status"}, nil
	case Sensors:
		return []string{"sensor"}, nil
	case FRUInfo:
		return []string{"fru"}, nil
	case BMCInfo:
		return []string{"bmc", "info"}, nil
	case EventLog:
		return []string{"sel", "list"}, nil
	case EventLogClear:
		return []string{"sel", "clear"}, nil
	case EventLogInfo:
		return []string{"sel", "info"}, nil
	case BootDeviceGet:
		return []string{"chassis", "bootparam", "get", "5"}, nil
	case BootDeviceSet:
		if !slices.Contains(BootDevices, cmd.BootDevice) {
			return nil, fmt.Errorf("invalid boot device %q", cmd.BootDevice)
		}
		options := "options=efiboot"
		if cmd.Persistent {
			options = "options=persistent"
		}
		return []string{"chassis", "bootdev", cmd.BootDevice, options}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// classifyRunError maps an ipmitool failure to one of the executor
// error kinds based on its stderr output.
func classifyRunError(stderr string, runErr error) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)

	for _, pattern := range []string{
		"rakp 2 message",
		"rakp 2 hmac",
		"invalid user name",
		"password invalid",
		"unauthorized name",
		"insufficient privilege",
		"authentication type",
	} {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %s", ErrAuthRejected, detail)
		}
	}

	for _, pattern := range []string{
		"unable to establish",
		"connection refused",
		"no route to host",
		"network is unreachable",
		"address lookup",
		"get session challenge",
	} {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %s", ErrConnectFailed, detail)
		}
	}

	if detail != "" {
		return fmt.Errorf("%w: %s", ErrProtocol, detail)
	}
	return runErr
}

// buildResult parses ipmitool stdout into the command-specific payload.
func buildResult(cmd Command, stdout string) Result {
	output := strings.TrimSpace(stdout)
	switch cmd.Kind {
	case PowerStatus, Health:
		return Result{Output: output, PowerState: ParsePowerState(output)}
	case Sensors:
		return Result{Sensors: ParseSensors(stdout)}
	case EventLog:
		return Result{Events: ParseEvents(stdout)}
	case BootDeviceGet:
		return Result{Output: output, BootInfo: ParseBootInfo(stdout)}
	default:
		return Result{Output: output}
	}
}

// ParsePowerState extracts the chassis power state from `chassis power
// status` or `chassis status` output. Unrecognized output maps to
// "unknown" rather than an error.
func ParsePowerState(output string) string {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "power is on") {
		return "on"
	}
	if strings.Contains(lower, "power is off") {
		return "off"
	}
	for _, line := range strings.Split(lower, "\n") {
		if !strings.Contains(line, "system power") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(value) {
		case "on":
			return "on"
		case "off":
			return "off"
		}
	}
	return "unknown"
}

// ParseSensors parses the pipe-separated `sensor` table. Rows with
// fewer than three columns are skipped.
func ParseSensors(output string) []SensorReading {
	var sensors []SensorReading
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			continue
		}
		reading := SensorReading{
			Name:  parts[0],
			Value: parts[1],
			Unit:  parts[2],
		}
		if len(parts) > 3 {
			reading.Status = parts[3]
		}
		sensors = append(sensors, reading)
	}
	return sensors
}

// ParseEvents parses the pipe-separated `sel list` table. Rows with
// fewer than four columns are skipped.
func ParseEvents(output string) []EventRecord {
	var events []EventRecord
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 4 {
			continue
		}
		record := EventRecord{
			ID:        parts[0],
			Timestamp: parts[1] + " " + parts[2],
			Sensor:    parts[3],
		}
		if len(parts) > 4 {
			record.Event = parts[4]
		}
		if len(parts) > 5 {
			record.Value = parts[5]
		}
		events = append(events, record)
	}
	return events
}

// ParseBootInfo parses `chassis bootparam get 5` output into a map of
// normalized keys.
func ParseBootInfo(output string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.ReplaceAll(key, " ", "_")
		if key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info
}
