package executor

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/JamesDodds/ipmi-api-gateway/internal/strutil"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

const defaultIpmitoolPath = "ipmitool"

// Ipmitool executes commands by invoking the local ipmitool binary
// over the lanplus interface.
type Ipmitool struct {
	path   string
	logger *slog.Logger
}

func NewIpmitool(logger *slog.Logger) *Ipmitool {
	return &Ipmitool{
		path:   defaultIpmitoolPath,
		logger: logger,
	}
}

func (e *Ipmitool) Execute(ctx context.Context, d target.Descriptor, cmd Command) (Result, error) {
	args, err := ipmitoolArgs(d, cmd)
	if err != nil {
		return Result{}, err
	}

	e.logger.Debug("Executing ipmitool",
		"target", d.Name,
		"address", d.Address,
		"command", strutil.Redact(strings.Join(args, " "), d.Password))

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, e.path, args...)
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if runErr := proc.Run(); runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, classifyRunError(stderr.String(), runErr)
	}

	return buildResult(cmd, stdout.String()), nil
}

// ipmitoolArgs builds the full ipmitool argument list for one command
// against one target.
func ipmitoolArgs(d target.Descriptor, cmd Command) ([]string, error) {
	subcommand, err := commandArgs(cmd)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-I", "lanplus",
		"-H", d.Address,
		"-U", d.Username,
		"-P", d.Password,
	}
	return append(args, subcommand...), nil
}
