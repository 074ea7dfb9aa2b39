package builder

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"apkforge/internal/toolchain"
	"apkforge/internal/workspace"
)

// Keystore holds the effective signing credentials for jarsigner.
type Keystore struct {
	Path      string
	Alias     string
	StorePass string
	KeyPass   string
}

var (
	appNameRe = regexp.MustCompile(`<string name="app_name">.*?</string>`)
	// Matches const-string literals carrying an http(s) URL. Every match in the
	// entry-point file is rewritten; literals that merely look like URLs are
	// rewritten too, matching the permissive behavior templates rely on.
	urlLiteralRe = regexp.MustCompile(`const-string[^,]+,\s*"https?://[^"]*"`)
)

// Pipeline applies the ordered mutation stages for one build attempt inside a
// single workspace. Stages are strictly ordered and not retryable; a failed
// attempt is abandoned and the caller starts over with a fresh workspace.
type Pipeline struct {
	runner    toolchain.Runner
	apktool   string
	jarsigner string
	keystore  Keystore
	ws        *workspace.Workspace

	decompiledDir string
	artifact      string
}

// NewPipeline binds a pipeline to one workspace and tool configuration.
func NewPipeline(runner toolchain.Runner, apktool, jarsigner string, ks Keystore, ws *workspace.Workspace) *Pipeline {
	return &Pipeline{
		runner:    runner,
		apktool:   apktool,
		jarsigner: jarsigner,
		keystore:  ks,
		ws:        ws,
	}
}

// Decompile unpacks the base APK into the workspace.
func (p *Pipeline) Decompile(ctx context.Context, baseAPK string) error {
	dir := p.ws.Path("decompiled")

	result, err := p.runner.Run(ctx, p.apktool, "decompile", baseAPK, "-o", dir, "-force")
	if err != nil {
		return &ToolError{Stage: "decompile", Tool: p.apktool, Err: err}
	}
	if result.ExitCode != 0 {
		return &ToolError{Stage: "decompile", Tool: p.apktool, Output: diagnostic(result)}
	}

	p.decompiledDir = dir
	return nil
}

// RenameApp replaces the displayed application name in the string resources.
func (p *Pipeline) RenameApp(name string) error {
	if p.decompiledDir == "" {
		return ErrNotDecompiled
	}

	stringsPath := filepath.Join(p.decompiledDir, "res", "values", "strings.xml")
	data, err := os.ReadFile(stringsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w at %s", ErrResourceNotFound, stringsPath)
		}
		return fmt.Errorf("read strings.xml: %w", err)
	}

	escaped := xmlEscape(name)
	content := appNameRe.ReplaceAllStringFunc(string(data), func(string) string {
		return `<string name="app_name">` + escaped + `</string>`
	})

	if err := os.WriteFile(stringsPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write strings.xml: %w", err)
	}
	return nil
}

// RetargetURL rewrites every embedded http(s) string literal in the main
// entry-point's bytecode to the new target URL. Zero literal matches is not an
// error; some templates embed the URL elsewhere.
func (p *Pipeline) RetargetURL(newURL string) error {
	if p.decompiledDir == "" {
		return ErrNotDecompiled
	}

	entryPath, err := findEntryPoint(p.decompiledDir)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(entryPath)
	if err != nil {
		return fmt.Errorf("read entry point: %w", err)
	}

	content := urlLiteralRe.ReplaceAllStringFunc(string(data), func(match string) string {
		// Keep the const-string prefix, swap the quoted literal
		closing := strings.LastIndex(match, `"`)
		opening := strings.LastIndex(match[:closing], `"`)
		return match[:opening] + `"` + newURL + `"`
	})

	if err := os.WriteFile(entryPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write entry point: %w", err)
	}
	return nil
}

// ReplaceIcon renders the supplied icon into every density bucket. An empty
// path skips the stage; a supplied but unreadable icon aborts the pipeline.
func (p *Pipeline) ReplaceIcon(iconPath string) error {
	if iconPath == "" {
		return nil
	}
	if p.decompiledDir == "" {
		return ErrNotDecompiled
	}
	if err := renderIcons(iconPath, p.decompiledDir); err != nil {
		return &IconError{Err: err}
	}
	return nil
}

// Recompile packs the mutated tree into an unsigned APK.
func (p *Pipeline) Recompile(ctx context.Context) error {
	if p.decompiledDir == "" {
		return ErrNotDecompiled
	}

	output := p.ws.Path("modified.apk")
	result, err := p.runner.Run(ctx, p.apktool, "build", p.decompiledDir, "-o", output)
	if err != nil {
		return &ToolError{Stage: "recompile", Tool: p.apktool, Err: err}
	}
	if result.ExitCode != 0 {
		return &ToolError{Stage: "recompile", Tool: p.apktool, Output: diagnostic(result)}
	}

	p.artifact = output
	return nil
}

// Sign copies the unsigned artifact and signs the copy with the configured
// keystore. On success the artifact pointer moves to the signed copy.
func (p *Pipeline) Sign(ctx context.Context) error {
	if p.artifact == "" {
		return fmt.Errorf("sign failed: no apk to sign")
	}

	signed := p.ws.Path("signed.apk")
	if err := copyFile(p.artifact, signed); err != nil {
		return fmt.Errorf("sign failed: %w", err)
	}

	result, err := p.runner.Run(ctx, p.jarsigner,
		"-sigalg", "SHA256withRSA",
		"-digestalg", "SHA-256",
		"-keystore", p.keystore.Path,
		"-storepass", p.keystore.StorePass,
		"-keypass", p.keystore.KeyPass,
		signed, p.keystore.Alias,
	)
	if err != nil {
		return &ToolError{Stage: "sign", Tool: p.jarsigner, Err: err}
	}
	if result.ExitCode != 0 {
		return &ToolError{Stage: "sign", Tool: p.jarsigner, Output: diagnostic(result)}
	}

	p.artifact = signed
	return nil
}

// Artifact returns the path of the current output APK.
func (p *Pipeline) Artifact() string {
	return p.artifact
}

// findEntryPoint locates the first MainActivity.smali anywhere under the tree.
func findEntryPoint(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "MainActivity.smali" {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan for entry point: %w", err)
	}
	if found == "" {
		return "", ErrEntryPointNotFound
	}
	return found, nil
}

// diagnostic picks the most useful tool output for the error payload.
func diagnostic(result toolchain.Result) string {
	if strings.TrimSpace(result.Stderr) != "" {
		return result.Stderr
	}
	return result.Stdout
}

func xmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
