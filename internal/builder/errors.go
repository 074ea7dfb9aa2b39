// Package builder implements the APK mutation pipeline and its driver.
package builder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotDecompiled is returned when a mutation stage runs before Decompile.
	ErrNotDecompiled = errors.New("apk not decompiled yet")
	// ErrResourceNotFound is returned when the app-name string resource is missing.
	ErrResourceNotFound = errors.New("strings.xml not found")
	// ErrEntryPointNotFound is returned when no entry-point bytecode file exists.
	ErrEntryPointNotFound = errors.New("MainActivity.smali not found")
)

// ToolError reports a failed external tool invocation. Output preserves the
// tool's raw diagnostics for operators; it is not machine-parseable.
type ToolError struct {
	Stage  string
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, strings.TrimSpace(e.Output))
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IconError reports a supplied icon that could not be decoded or written.
type IconError struct {
	Err error
}

func (e *IconError) Error() string {
	return "icon processing failed: " + e.Err.Error()
}

func (e *IconError) Unwrap() error {
	return e.Err
}
