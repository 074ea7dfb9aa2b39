package builder

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"apkforge/internal/catalog"
	"apkforge/internal/jobs"
	"apkforge/internal/toolchain"
	"apkforge/internal/workspace"
)

// Options configures a build service.
type Options struct {
	Registry     *catalog.Registry
	Jobs         *jobs.Store
	Runner       toolchain.Runner
	Keystore     Keystore
	ApktoolBin   string
	JarsignerBin string
	// WorkRoot is the parent directory for build workspaces; empty uses the OS temp dir.
	WorkRoot string
	// GeneratedDir receives finished artifacts.
	GeneratedDir string
}

// Service drives complete build attempts: template selection, workspace
// lifecycle, the mutation pipeline, and ledger updates.
type Service struct {
	registry     *catalog.Registry
	jobs         *jobs.Store
	runner       toolchain.Runner
	keystore     Keystore
	apktool      string
	jarsigner    string
	workRoot     string
	generatedDir string
}

// Request describes one requested build.
type Request struct {
	AppName string
	URL     string
	// IconPath is the uploaded icon on disk; empty means no custom icon.
	IconPath string
}

// NewService creates a build service.
func NewService(opts Options) *Service {
	return &Service{
		registry:     opts.Registry,
		jobs:         opts.Jobs,
		runner:       opts.Runner,
		keystore:     opts.Keystore,
		apktool:      opts.ApktoolBin,
		jarsigner:    opts.JarsignerBin,
		workRoot:     opts.WorkRoot,
		generatedDir: opts.GeneratedDir,
	}
}

// Run executes one build attempt for a ledger-tracked job, advancing its
// progress stage by stage and finishing it as completed or failed. The uploaded
// icon and the workspace are cleaned up on every path.
func (s *Service) Run(ctx context.Context, jobID string, req Request) {
	artifact, err := s.execute(ctx, jobID, req, func(progress int, message string) {
		if err := s.jobs.Advance(jobID, progress, message); err != nil {
			log.Printf("job %s: advance: %v", jobID, err)
		}
	})
	s.removeIcon(req.IconPath)

	if err != nil {
		log.Printf("job %s: build failed: %v", jobID, err)
		if ferr := s.jobs.Fail(jobID, err.Error()); ferr != nil {
			log.Printf("job %s: fail: %v", jobID, ferr)
		}
		return
	}

	if cerr := s.jobs.Complete(jobID, artifact); cerr != nil {
		log.Printf("job %s: complete: %v", jobID, cerr)
	}
}

// BuildOnce executes one untracked build attempt and returns the artifact
// path. The caller owns the artifact and removes it after serving it.
func (s *Service) BuildOnce(ctx context.Context, req Request) (string, error) {
	artifact, err := s.execute(ctx, uuid.NewString(), req, nil)
	s.removeIcon(req.IconPath)
	return artifact, err
}

func (s *Service) execute(ctx context.Context, outName string, req Request, progress func(int, string)) (string, error) {
	report := func(p int, message string) {
		if progress != nil {
			progress(p, message)
		}
	}

	report(10, "Starting APK build...")

	template := s.registry.Select(map[string]string{
		"app_name": req.AppName,
		"url":      req.URL,
		"icon":     req.IconPath,
	})

	ws, err := workspace.Acquire(s.workRoot)
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			log.Printf("%v", rerr)
		}
	}()

	pipeline := NewPipeline(s.runner, s.apktool, s.jarsigner, s.keystore, ws)

	report(20, "Decompiling base APK...")
	if err := pipeline.Decompile(ctx, template.APKPath); err != nil {
		return "", err
	}

	report(40, fmt.Sprintf("Setting app name to: %s", req.AppName))
	if err := pipeline.RenameApp(req.AppName); err != nil {
		return "", err
	}

	report(55, fmt.Sprintf("Setting URL to: %s", req.URL))
	if err := pipeline.RetargetURL(req.URL); err != nil {
		return "", err
	}

	if req.IconPath != "" {
		report(70, "Replacing app icon...")
		if err := pipeline.ReplaceIcon(req.IconPath); err != nil {
			return "", err
		}
	}

	report(85, "Recompiling APK...")
	if err := pipeline.Recompile(ctx); err != nil {
		return "", err
	}

	report(95, "Signing APK...")
	if err := pipeline.Sign(ctx); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.generatedDir, 0755); err != nil {
		return "", fmt.Errorf("create generated dir: %w", err)
	}
	final := filepath.Join(s.generatedDir, outName+".apk")
	if err := copyFile(pipeline.Artifact(), final); err != nil {
		return "", fmt.Errorf("copy artifact: %w", err)
	}

	return final, nil
}

// removeIcon deletes the temporary uploaded icon, tolerating prior removal.
func (s *Service) removeIcon(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("icon cleanup: %v", err)
	}
}
