// Package executor runs a single management command against a single
// BMC and classifies the outcome. Implementations cover direct
// ipmitool invocation and ipmitool via an SSH jump host.
package executor

import (
	"context"
	"errors"

	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

// Kind identifies a management command.
type Kind string

const (
	PowerOn       Kind = "power-on"
	PowerOff      Kind = "power-off"
	PowerReset    Kind = "power-reset"
	PowerStatus   Kind = "power-status"
	Health        Kind = "health"
	Sensors       Kind = "sensors"
	FRUInfo       Kind = "fru-info"
	BMCInfo       Kind = "bmc-info"
	EventLog      Kind = "event-log"
	EventLogClear Kind = "event-log-clear"
	EventLogInfo  Kind = "event-log-info"
	BootDeviceGet Kind = "boot-device-get"
	BootDeviceSet Kind = "boot-device-set"
)

// BootDevices lists the devices a BMC accepts for the next boot.
var BootDevices = []string{"pxe", "disk", "cdrom", "bios", "floppy", "safe"}

// Command is one management command. Force applies to PowerOff only
// and selects a hard power-off instead of the graceful soft shutdown.
// BootDevice and Persistent apply to BootDeviceSet only.
type Command struct {
	Kind       Kind
	Force      bool
	BootDevice string
	Persistent bool
}

// SensorReading is one row of the BMC sensor table.
type SensorReading struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Status string `json:"status"`
}

// EventRecord is one row of the BMC system event log.
type EventRecord struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Sensor    string `json:"sensor"`
	Event     string `json:"event"`
	Value     string `json:"value,omitempty"`
}

// Result is the command-specific payload of a successful execution.
type Result struct {
	Output     string            `json:"output,omitempty"`
	PowerState string            `json:"power_state,omitempty"`
	Sensors    []SensorReading   `json:"sensors,omitempty"`
	Events     []EventRecord     `json:"events,omitempty"`
	BootInfo   map[string]string `json:"boot_info,omitempty"`
}

// Execution failures the dispatcher distinguishes. Anything else is a
// generic failure; a context deadline is reported as a timeout.
var (
	ErrAuthRejected  = errors.New("authentication rejected")
	ErrConnectFailed = errors.New("connection failed")
	ErrProtocol      = errors.New("protocol error")
)

// Executor executes one command against one target. Implementations
// must honor ctx cancellation and are responsible for eventually
// releasing their own resources after an abandoned call.
type Executor interface {
	Execute(ctx context.Context, d target.Descriptor, cmd Command) (Result, error)
}
