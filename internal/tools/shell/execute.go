package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

const maxOutputBytes = 50000

// RunCommandTool returns a tool for executing shell commands.
func RunCommandTool() *tools.Tool {
	return &tools.Tool{
		Name:        "run_command",
		Description: "Execute a shell command and return its output",
		Category:    tools.CategoryShell,
		Priority:    70,
		OnFailure:   tools.FailAbort,
		Execute:     executeRunCommand,
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 60)",
					Default:     60,
				},
			},
		},
	}
}

func executeRunCommand(ctx context.Context, args map[string]any) (tools.Payload, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	workingDir, _ := args["working_dir"].(string)

	timeout := 60
	switch t := args["timeout_seconds"].(type) {
	case int:
		if t > 0 {
			timeout = t
		}
	case float64:
		if t > 0 {
			timeout = int(t)
		}
	}

	log := logging.Tools()
	log.Debug("run_command",
		zap.String("command", command),
		zap.String("dir", workingDir),
		zap.Int("timeout_s", timeout))

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	cmd.Dir = workingDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n...[truncated]"
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %d seconds", timeout)
		}
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		log.Warn("run_command failed", zap.String("command", command), zap.Error(err))
		return tools.ShellOutput{Command: command, Output: output, ExitCode: exitCode},
			fmt.Errorf("command failed: %w", err)
	}

	return tools.ShellOutput{Command: command, Output: output, ExitCode: 0}, nil
}
