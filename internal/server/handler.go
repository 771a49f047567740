package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"pdf-analyzer/internal/models"
	"pdf-analyzer/internal/parser"
	"pdf-analyzer/internal/session"
)

// Pipeline is the question-answering service the handlers drive.
type Pipeline interface {
	Process(ctx context.Context, sess *session.Session, files []parser.File) (models.ProcessResult, error)
	Ask(ctx context.Context, sess *session.Session, question string) (models.Turn, error)
}

// Handler serves the session-scoped HTTP API.
type Handler struct {
	pipeline  Pipeline
	sessions  *session.Registry
	maxUpload int64
	markdown  goldmark.Markdown
}

func NewHandler(pipeline Pipeline, sessions *session.Registry, maxUpload int64) *Handler {
	return &Handler{
		pipeline:  pipeline,
		sessions:  sessions,
		maxUpload: maxUpload,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

type recordResponse struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	WebLinks   []string  `json:"web_links"`
	VideoLinks []string  `json:"video_links"`
	AskedAt    time.Time `json:"asked_at"`
}

type turnResponse struct {
	recordResponse
	AnswerHTML string           `json:"answer_html"`
	Fallback   bool             `json:"fallback"`
	Warnings   []string         `json:"warnings,omitempty"`
	Sources    []models.Source  `json:"sources"`
	Previous   []recordResponse `json:"previous"`
}

type questionPayload struct {
	Question string `json:"question"`
}

// CreateSession starts a new empty session.
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID, "created_at": sess.CreatedAt})
}

// DeleteSession drops the session with its index and log.
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadDocuments processes the multipart "files" into a new session index.
func (h *Handler) UploadDocuments(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit", err))
			return
		}
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "multipart form with files is required", err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "at least one file is required", nil))
		return
	}

	files := make([]parser.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
			return
		}
		files = append(files, parser.File{Name: fh.Filename, Data: data})
	}

	result, err := h.pipeline.Process(c.Request.Context(), sess, files)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// AskQuestion answers a question against the session's current index.
func (h *Handler) AskQuestion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var payload questionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid JSON body", err))
		return
	}

	turn, err := h.pipeline.Ask(c.Request.Context(), sess, payload.Question)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}

	resp := turnResponse{
		recordResponse: toRecord(turn.Record),
		AnswerHTML:     h.renderMarkdown(turn.Record.Answer),
		Fallback:       turn.Record.Answer == models.FallbackAnswer,
		Warnings:       turn.Record.Links.Warnings(),
		Sources:        turn.Sources,
		Previous:       make([]recordResponse, 0, len(turn.Previous)),
	}
	for _, rec := range turn.Previous {
		resp.Previous = append(resp.Previous, toRecord(rec))
	}
	c.JSON(http.StatusOK, resp)
}

// History returns every answered turn in chronological order.
func (h *Handler) History(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	history := sess.History()
	items := make([]recordResponse, 0, len(history))
	for _, rec := range history {
		items = append(items, toRecord(rec))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, fromAppError(err))
		return nil, false
	}
	return sess, true
}

func (h *Handler) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func toRecord(rec models.QARecord) recordResponse {
	return recordResponse{
		Question:   rec.Question,
		Answer:     rec.Answer,
		WebLinks:   nonNil(rec.Links.Web.URLs),
		VideoLinks: nonNil(rec.Links.Video.URLs),
		AskedAt:    rec.AskedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
