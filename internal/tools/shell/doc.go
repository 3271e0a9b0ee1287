// Package shell provides command execution and file I/O tools.
//
// Tools:
//   - run_command: execute a shell command
//   - read_file: read a file's contents
//   - write_file: write content to a file
//   - list_dir: list a directory
package shell
