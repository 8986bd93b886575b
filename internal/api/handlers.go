package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/session"
	"pdfmaster/internal/tool"
	"pdfmaster/internal/workflow"
)

type createSessionRequest struct {
	Tool string `json:"tool"`
}

type sessionResponse struct {
	ID             string              `json:"id"`
	CreatedAt      string              `json:"created_at"`
	Tool           tool.Key            `json:"tool"`
	State          workflow.State      `json:"state"`
	Files          []workflow.FileInfo `json:"files"`
	Progress       int                 `json:"progress"`
	CanSubmit      bool                `json:"can_submit"`
	Error          string              `json:"error,omitempty"`
	ErrorKind      workflow.ErrorKind  `json:"error_kind,omitempty"`
	SuggestedName  string              `json:"suggested_name,omitempty"`
	ResultURL      string              `json:"result_url,omitempty"`
	ResultSize     int64               `json:"result_size,omitempty"`
	ResultLocation string              `json:"result_location,omitempty"`
}

type API struct {
	sessions       *session.Manager
	maxUploadBytes int64
}

const defaultMaxUploadBytes = 30 << 20

func NewAPI(sessions *session.Manager, maxUploadBytes int64) *API {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &API{sessions: sessions, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/tools", a.ListTools)
		api.POST("/sessions", a.CreateSession)
		api.GET("/sessions/:id", a.GetSession)
		api.DELETE("/sessions/:id", a.DeleteSession)
		api.POST("/sessions/:id/files", a.SelectFiles)
		api.DELETE("/sessions/:id/files/:index", a.RemoveFile)
		api.POST("/sessions/:id/submit", a.Submit)
		api.POST("/sessions/:id/cancel", a.Cancel)
		api.POST("/sessions/:id/reset", a.Reset)
		api.GET("/sessions/:id/result", a.DownloadResult)
	}
}

// ListTools returns the tool catalog
func (a *API) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": tool.Catalog()})
}

// CreateSession opens a session for one tool
func (a *API) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid create session request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	s, err := a.sessions.Create(req.Tool)
	if err != nil {
		a.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(s, s.Snapshot()))
}

// GetSession returns the session state
func (a *API) GetSession(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, s.Snapshot()))
}

// DeleteSession closes the session and releases its result
func (a *API) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := a.sessions.Delete(id); err != nil {
		a.writeError(c, id, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectFiles replaces the selection with the uploaded files
func (a *API) SelectFiles(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	source, files, err := a.readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Str("session_id", s.ID).Int64("limit", tooLarge.Limit).Msg("upload too large")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d MB", a.maxUploadBytes>>20)})
			return
		}
		log.Warn().Str("session_id", s.ID).Err(err).Msg("invalid upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.SelectFiles(files, source)
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	log.Info().Str("session_id", s.ID).Int("received", len(files)).Int("selected", len(snap.Files)).Msg("files selected")
	c.JSON(http.StatusOK, toSessionResponse(s, snap))
}

// RemoveFile drops one file from the selection
func (a *API) RemoveFile(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file index"})
		return
	}
	snap, err := s.RemoveFile(index)
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, snap))
}

// Submit starts processing with the given options. An empty body uses the
// tool's defaults.
func (a *API) Submit(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	values := map[string]string{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&values); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "options must be a JSON object of strings"})
			return
		}
	}
	opts, err := tool.ParseOptions(s.Descriptor().Key, values)
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	snap, err := a.sessions.Submit(s.ID, opts)
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	c.JSON(http.StatusAccepted, toSessionResponse(s, snap))
}

// Cancel aborts an in-flight submission
func (a *API) Cancel(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, s.Cancel()))
}

// Reset clears files and result
func (a *API) Reset(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	snap, err := s.Reset()
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, snap))
}

// DownloadResult streams the processed file under its suggested name
func (a *API) DownloadResult(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	rc, res, name, err := s.OpenResult(c.Request.Context())
	if err != nil {
		a.writeError(c, s.ID, err)
		return
	}
	defer rc.Close()
	log.Info().Str("session_id", s.ID).Str("artifact_id", res.ID).Msg("serving result download")
	c.DataFromReader(http.StatusOK, res.Size, res.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func (a *API) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	s, err := a.sessions.Get(id)
	if err != nil {
		a.writeError(c, id, err)
		return nil, false
	}
	return s, true
}

func (a *API) readUpload(c *gin.Context) (workflow.Source, []workflow.FileHandle, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, err
	}
	source := workflow.SourcePicker
	if vals := form.Value["source"]; len(vals) > 0 {
		switch workflow.Source(strings.ToLower(strings.TrimSpace(vals[0]))) {
		case workflow.SourcePicker:
		case workflow.SourceDrop:
			source = workflow.SourceDrop
		default:
			return "", nil, fmt.Errorf("unknown source %q", vals[0])
		}
	}
	headers := form.File["files"]
	files := make([]workflow.FileHandle, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return "", nil, err
		}
		files = append(files, workflow.NewFileHandle(fh.Filename, fh.Header.Get("Content-Type"), data))
	}
	return source, files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func (a *API) writeError(c *gin.Context, id string, err error) {
	status := statusFor(err)
	evt := log.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		evt = log.Error()
	}
	evt.Str("session_id", id).Int("status", status).Err(err).Msg("request rejected")
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, tool.ErrUnknownTool), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrServerBusy), errors.Is(err, session.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, tool.ErrInvalidOptions), errors.Is(err, tool.ErrOptionsMismatch):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrNotReady),
		errors.Is(err, workflow.ErrNoFiles), errors.Is(err, workflow.ErrNoResult):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func toSessionResponse(s *session.Session, snap workflow.Snapshot) sessionResponse {
	resp := sessionResponse{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		Tool:          snap.Tool,
		State:         snap.State,
		Files:         snap.Files,
		Progress:      snap.Progress,
		CanSubmit:     snap.CanSubmit,
		Error:         snap.Error,
		ErrorKind:     snap.ErrorKind,
		SuggestedName: snap.SuggestedName,
	}
	if snap.Artifact != nil {
		resp.ResultURL = "/api/v1/sessions/" + s.ID + "/result"
		resp.ResultSize = snap.Artifact.Size
		// presigned object-store urls can be handed out directly; disk paths stay private
		if strings.HasPrefix(snap.Artifact.Location, "https://") || strings.HasPrefix(snap.Artifact.Location, "http://") {
			resp.ResultLocation = snap.Artifact.Location
		}
	}
	return resp
}
