package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/resume"
)

// ─── GET /api/resumes ─────────────────────────────────────────────────────────

type listResumesResponse struct {
	Files      []resume.File `json:"files"`
	ActivePath string        `json:"activePath"`
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	files, err := s.resumes.List(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list resumes: %w", err))
		return
	}
	profile, err := s.q.GetProfile(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get profile: %w", err))
		return
	}
	if files == nil {
		files = []resume.File{}
	}
	respond(w, http.StatusOK, listResumesResponse{Files: files, ActivePath: profile.ResumePath.String})
}

// ─── POST /api/resumes ────────────────────────────────────────────────────────

type resumeResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// handleUploadResume stores a PDF from the "file" form field and makes it the
// active résumé.
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, resume.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(resume.MaxUploadBytes); err != nil {
		respondErr(w, http.StatusRequestEntityTooLarge, "File must be a PDF of at most 5 MB.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	if header.Size > resume.MaxUploadBytes {
		respondErr(w, http.StatusRequestEntityTooLarge, "File must be a PDF of at most 5 MB.")
		return
	}
	ct := header.Header.Get("Content-Type")
	if ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		respondErr(w, http.StatusBadRequest, "Only PDF files are supported.")
		return
	}

	name, err := resume.CleanName(path.Base(header.Filename))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "Only PDF files are supported.")
		return
	}

	key, err := s.resumes.Upload(r.Context(), user.ID, name, file)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("upload resume: %w", err))
		return
	}
	if _, err := s.q.SetResumePath(r.Context(), db.SetResumePathParams{
		ID:         user.ID,
		ResumePath: sql.NullString{String: key, Valid: true},
	}); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("set resume path: %w", err))
		return
	}

	s.logger.Info("resume: uploaded", "user_id", user.ID, "path", key, "bytes", header.Size, logField(r))
	respond(w, http.StatusCreated, resumeResponse{Name: name, Path: key})
}

// ─── PUT /api/resumes/active ──────────────────────────────────────────────────

type selectResumeRequest struct {
	Name string `json:"name"`
}

// handleSelectResume makes a previously uploaded file the active résumé.
func (s *Server) handleSelectResume(w http.ResponseWriter, r *http.Request) {
	var req selectResumeRequest
	if !decode(w, r, &req) {
		return
	}
	name, err := resume.CleanName(req.Name)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "Invalid file name.")
		return
	}

	user := currentUser(r)
	key := resume.Path(user.ID, name)
	ok, err := s.resumes.Exists(r.Context(), key)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("check resume: %w", err))
		return
	}
	if !ok {
		respondErr(w, http.StatusNotFound, "Resume not found.")
		return
	}

	if _, err := s.q.SetResumePath(r.Context(), db.SetResumePathParams{
		ID:         user.ID,
		ResumePath: sql.NullString{String: key, Valid: true},
	}); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("set resume path: %w", err))
		return
	}
	respond(w, http.StatusOK, resumeResponse{Name: name, Path: key})
}

// ─── DELETE /api/resumes/{name} ───────────────────────────────────────────────

type deleteResumeResponse struct {
	Deleted   bool `json:"deleted"`
	WasActive bool `json:"wasActive"`
}

// handleDeleteResume removes a stored file and clears the active pointer if
// it referenced that file.
func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	user := currentUser(r)

	key, err := s.resumes.Delete(r.Context(), user.ID, name)
	switch {
	case errors.Is(err, resume.ErrInvalidName):
		respondErr(w, http.StatusBadRequest, "Invalid file name.")
		return
	case errors.Is(err, resume.ErrNotFound):
		respondErr(w, http.StatusNotFound, "Resume not found.")
		return
	case err != nil:
		s.respondInternalErr(w, r, fmt.Errorf("delete resume: %w", err))
		return
	}

	n, err := s.q.ClearResumePathIfActive(r.Context(), db.ClearResumePathIfActiveParams{ID: user.ID, ResumePath: key})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("clear resume path: %w", err))
		return
	}
	respond(w, http.StatusOK, deleteResumeResponse{Deleted: true, WasActive: n > 0})
}
