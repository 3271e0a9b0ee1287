package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

const maxFileBytes = 1 << 20 // 1 MiB

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Category:    tools.CategoryShell,
		Priority:    60,
		OnFailure:   tools.FailAbort,
		Execute:     executeReadFile,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Path of the file to read",
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, args map[string]any) (tools.Payload, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if info.Size() > maxFileBytes {
		return nil, fmt.Errorf("read %s: file too large (%d bytes)", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return tools.FileContent{Path: path, Content: string(data)}, nil
}

// WriteFileTool returns a tool for writing file contents.
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories",
		Category:    tools.CategoryShell,
		Priority:    60,
		OnFailure:   tools.FailAbort,
		Execute:     executeWriteFile,
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Path of the file to write",
				},
				"content": {
					Type:        "string",
					Description: "Content to write",
				},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, args map[string]any) (tools.Payload, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return tools.Text{Value: fmt.Sprintf("Wrote %d bytes to %s", len(content), path)}, nil
}

// ListDirTool returns a tool for listing a directory.
func ListDirTool() *tools.Tool {
	return &tools.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory",
		Category:    tools.CategoryShell,
		Priority:    55,
		OnFailure:   tools.FailContinue,
		Execute:     executeListDir,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Directory to list",
				},
			},
		},
	}
}

func executeListDir(ctx context.Context, args map[string]any) (tools.Payload, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&sb, "%s\n", e.Name())
		}
	}
	return tools.Text{Value: strings.TrimRight(sb.String(), "\n")}, nil
}
