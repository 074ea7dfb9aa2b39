package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"apkforge/internal/builder"
	"apkforge/internal/jobs"
)

const maxUploadBytes = 32 << 20 // form parse memory limit, icons are small

// buildForm is the validated input of a build request.
type buildForm struct {
	AppName  string
	URL      string
	IconPath string
}

// jobResponse is the wire shape of a job snapshot.
type jobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	AppName     string `json:"app_name"`
	URL         string `json:"url"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// handleBuildSync builds an APK in the request's lifetime and responds with the
// signed artifact. The artifact is removed once it has been served.
func (s *Server) handleBuildSync(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseBuildForm(w, r, uuid.NewString())
	if !ok {
		return
	}

	artifact, err := s.builder.BuildOnce(r.Context(), builder.Request{
		AppName:  form.AppName,
		URL:      form.URL,
		IconPath: form.IconPath,
	})
	if err != nil {
		log.Printf("sync build failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		if rerr := os.Remove(artifact); rerr != nil {
			log.Printf("artifact cleanup: %v", rerr)
		}
	}()

	serveAPK(w, r, artifact, safeFileName(form.AppName)+".apk")
}

// handleBuildAsync creates a tracked job and runs the build in the background,
// answering immediately with the job id and polling URLs.
func (s *Server) handleBuildAsync(w http.ResponseWriter, r *http.Request) {
	jobID := uuid.NewString()

	form, ok := s.parseBuildForm(w, r, jobID)
	if !ok {
		return
	}

	if _, err := s.jobs.Create(jobID, form.AppName, form.URL, form.IconPath != ""); err != nil {
		log.Printf("job create failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create build job")
		return
	}

	// Detached from the request context: the build outlives this response.
	go s.builder.Run(context.Background(), jobID, builder.Request{
		AppName:  form.AppName,
		URL:      form.URL,
		IconPath: form.IconPath,
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       jobID,
		"status":       jobs.StatusPending,
		"message":      "Build job created. Poll the status URL for progress.",
		"status_url":   fmt.Sprintf("/api/v1/status/%s", jobID),
		"download_url": fmt.Sprintf("/api/v1/download/%s", jobID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeNotFound(w, "Job not found")
		return
	}
	if err != nil {
		log.Printf("job lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to look up job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeNotFound(w, "Job not found")
		return
	}
	if err != nil {
		log.Printf("job lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to look up job")
		return
	}

	switch job.Status {
	case jobs.StatusPending, jobs.StatusProcessing:
		writeJSON(w, http.StatusAccepted, toJobResponse(job))
	case jobs.StatusFailed:
		writeError(w, http.StatusInternalServerError, job.Error)
	case jobs.StatusCompleted:
		if _, err := os.Stat(job.ArtifactPath); err != nil {
			writeNotFound(w, "Build artifact no longer available")
			return
		}
		serveAPK(w, r, job.ArtifactPath, safeFileName(job.AppName)+".apk")
	default:
		writeError(w, http.StatusInternalServerError, "Unknown job status")
	}
}

// parseBuildForm validates the multipart build request and stages the uploaded
// icon on disk. A false return means the response has already been written.
func (s *Server) parseBuildForm(w http.ResponseWriter, r *http.Request, id string) (buildForm, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeBadRequest(w, "Invalid form data")
		return buildForm{}, false
	}

	url := strings.TrimSpace(r.FormValue("url"))
	if url == "" {
		writeBadRequest(w, "URL is required")
		return buildForm{}, false
	}

	appName := strings.TrimSpace(r.FormValue("appName"))
	if appName == "" {
		writeBadRequest(w, "App name is required")
		return buildForm{}, false
	}

	form := buildForm{AppName: appName, URL: normalizeURL(url)}

	file, header, err := r.FormFile("appIcon")
	if err == nil {
		defer file.Close()
		iconPath, serr := s.saveIcon(file, header.Filename, id)
		if serr != nil {
			log.Printf("icon upload failed: %v", serr)
			writeError(w, http.StatusInternalServerError, "Failed to save uploaded icon")
			return buildForm{}, false
		}
		form.IconPath = iconPath
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeBadRequest(w, "Invalid icon upload")
		return buildForm{}, false
	}

	return form, true
}

// saveIcon stages an uploaded icon under the generated dir so the build can
// read it after this request returns.
func (s *Server) saveIcon(src io.Reader, uploadName, id string) (string, error) {
	dir := filepath.Join(s.config.GeneratedDir(), "temp_icons")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := safeFileName(strings.TrimSuffix(filepath.Base(uploadName), filepath.Ext(uploadName)))
	if name == "" {
		name = "icon"
	}
	path := filepath.Join(dir, id+"_"+name+filepath.Ext(uploadName))

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func serveAPK(w http.ResponseWriter, r *http.Request, path, downloadName string) {
	w.Header().Set("Content-Type", "application/vnd.android.package-archive")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	http.ServeFile(w, r, path)
}

func toJobResponse(job jobs.Job) jobResponse {
	resp := jobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		AppName:   job.AppName,
		URL:       job.URL,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// normalizeURL prepends https:// when the scheme is missing.
func normalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}

// safeFileName keeps letters, digits, spaces, hyphens and underscores, drops
// everything else, and turns spaces into underscores.
func safeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
