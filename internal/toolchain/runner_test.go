package toolchain

import (
	"context"
	"strings"
	"testing"
)

func TestExecRunner_Success(t *testing.T) {
	var runner ExecRunner

	result, err := runner.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	var runner ExecRunner

	result, err := runner.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	if err != nil {
		t.Fatalf("Run() error = %v, non-zero exit should not be an error", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "broken") {
		t.Errorf("Stderr = %q, want diagnostic preserved", result.Stderr)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	var runner ExecRunner

	_, err := runner.Run(context.Background(), "definitely-not-a-real-tool-xyz")
	if err == nil {
		t.Error("Run() with missing binary should return an error")
	}
}

func TestRunnerFunc(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := RunnerFunc(func(ctx context.Context, name string, args ...string) (Result, error) {
		gotName = name
		gotArgs = args
		return Result{ExitCode: 0, Stdout: "ok"}, nil
	})

	result, err := runner.Run(context.Background(), "apktool", "decompile", "base.apk")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stdout != "ok" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if gotName != "apktool" || len(gotArgs) != 2 {
		t.Errorf("forwarded call = %s %v", gotName, gotArgs)
	}
}
