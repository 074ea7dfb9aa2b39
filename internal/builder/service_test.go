package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"apkforge/internal/catalog"
	"apkforge/internal/jobs"
	"apkforge/internal/toolchain"
)

func testService(t *testing.T, runner toolchain.Runner) (*Service, *jobs.Store, string) {
	t.Helper()
	dataDir := t.TempDir()

	registry, err := catalog.New([]catalog.Template{
		{
			ID:        "base_1",
			APKPath:   "templates/base_1.apk",
			Supported: []string{"app_name", "url", "icon"},
			Required:  []string{"app_name", "url"},
		},
	}, "base_1")
	if err != nil {
		t.Fatal(err)
	}

	store, err := jobs.NewStore(filepath.Join(dataDir, "build_jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	workRoot := filepath.Join(dataDir, "work")
	svc := NewService(Options{
		Registry:     registry,
		Jobs:         store,
		Runner:       runner,
		Keystore:     Keystore{Path: "release.keystore", Alias: "release", StorePass: "sp", KeyPass: "kp"},
		ApktoolBin:   "apktool",
		JarsignerBin: "jarsigner",
		WorkRoot:     workRoot,
		GeneratedDir: filepath.Join(dataDir, "generated"),
	})
	return svc, store, workRoot
}

func TestRun_Success(t *testing.T) {
	svc, store, workRoot := testService(t, fakeRunner(t))

	jobID := uuid.NewString()
	if _, err := store.Create(jobID, "My Shop", "https://myshop.example", false); err != nil {
		t.Fatal(err)
	}

	svc.Run(context.Background(), jobID, Request{AppName: "My Shop", URL: "https://myshop.example"})

	job, err := store.Get(jobID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("Status = %q, want completed (error: %s)", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("Progress = %d, want 100", job.Progress)
	}
	if job.ArtifactPath == "" {
		t.Fatal("completed job must carry an artifact path")
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		t.Errorf("artifact missing on disk: %v", err)
	}

	// No workspace left behind
	entries, err := os.ReadDir(workRoot)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace leftovers: %v", entries)
	}
}

func TestRun_DecompileFailure(t *testing.T) {
	runner := toolchain.RunnerFunc(func(ctx context.Context, name string, args ...string) (toolchain.Result, error) {
		return toolchain.Result{ExitCode: 1, Stderr: "brut.androlib.AndrolibException: corrupt apk"}, nil
	})
	svc, store, workRoot := testService(t, runner)

	jobID := uuid.NewString()
	store.Create(jobID, "My Shop", "https://myshop.example", false)

	svc.Run(context.Background(), jobID, Request{AppName: "My Shop", URL: "https://myshop.example"})

	job, err := store.Get(jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("Status = %q, want failed", job.Status)
	}
	if !strings.Contains(job.Error, "AndrolibException") {
		t.Errorf("Error = %q, want captured diagnostic", job.Error)
	}

	// Workspace is released on the failure path too
	entries, err := os.ReadDir(workRoot)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace leftovers after failure: %v", entries)
	}
}

func TestRun_RemovesUploadedIcon(t *testing.T) {
	svc, store, _ := testService(t, fakeRunner(t))

	iconPath := filepath.Join(t.TempDir(), "icon.png")
	writeTestIcon(t, iconPath, 128)

	jobID := uuid.NewString()
	store.Create(jobID, "My Shop", "https://myshop.example", true)

	svc.Run(context.Background(), jobID, Request{
		AppName:  "My Shop",
		URL:      "https://myshop.example",
		IconPath: iconPath,
	})

	job, _ := store.Get(jobID)
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("Status = %q, want completed (error: %s)", job.Status, job.Error)
	}
	if _, err := os.Stat(iconPath); !os.IsNotExist(err) {
		t.Errorf("uploaded icon not cleaned up: %v", err)
	}
}

func TestRun_UnreadableIconFails(t *testing.T) {
	svc, store, _ := testService(t, fakeRunner(t))

	iconPath := filepath.Join(t.TempDir(), "icon.png")
	os.WriteFile(iconPath, []byte("not an image"), 0644)

	jobID := uuid.NewString()
	store.Create(jobID, "My Shop", "https://myshop.example", true)

	svc.Run(context.Background(), jobID, Request{
		AppName:  "My Shop",
		URL:      "https://myshop.example",
		IconPath: iconPath,
	})

	job, _ := store.Get(jobID)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("Status = %q, want failed for an unreadable supplied icon", job.Status)
	}
	if !strings.Contains(job.Error, "icon processing failed") {
		t.Errorf("Error = %q", job.Error)
	}
}

func TestBuildOnce(t *testing.T) {
	svc, _, workRoot := testService(t, fakeRunner(t))

	artifact, err := svc.BuildOnce(context.Background(), Request{
		AppName: "My Shop",
		URL:     "https://myshop.example",
	})
	if err != nil {
		t.Fatalf("BuildOnce() error = %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	entries, err := os.ReadDir(workRoot)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace leftovers: %v", entries)
	}
}
