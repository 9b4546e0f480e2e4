package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/fyrsmithlabs/ragvisor/internal/logging"
	"github.com/fyrsmithlabs/ragvisor/internal/rag"
	"github.com/fyrsmithlabs/ragvisor/internal/sanitize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// uploadField is the multipart field carrying uploaded documents.
const uploadField = "files"

// handleHealth reports liveness and the number of stored chunks.
func (s *Server) handleHealth(c echo.Context) error {
	n, err := s.service.Count(c.Request().Context())
	if err != nil {
		logging.FromContext(c.Request().Context()).Warn("health check count failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Chunks: -1})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Chunks: n})
}

// handleAsk answers a question.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	question, err := sanitize.Question(req.Question)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("question %s", err))
	}

	ctx := c.Request().Context()
	res, err := s.service.Ask(ctx, question)
	switch {
	case errors.Is(err, rag.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, askResponse(res))
	case err != nil:
		logging.FromContext(ctx).Error("ask failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer question")
	}

	return c.JSON(http.StatusOK, askResponse(res))
}

func askResponse(res *rag.AskResult) AskResponse {
	if res == nil {
		return AskResponse{Answer: rag.ApologyAnswer, Retrieved: []rag.Retrieved{}, State: rag.StateFailed}
	}
	return AskResponse{
		Answer:    res.Answer,
		Retrieved: res.Retrieved,
		FromCache: res.FromCache,
		State:     res.State,
	}
}

// handleIngest ingests a URL or a folder below the configured root.
func (s *Server) handleIngest(c echo.Context) error {
	var body IngestRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req := rag.IngestRequest{Overwrite: body.Overwrite}
	switch {
	case body.URL != "" && body.Folder != "":
		return echo.NewHTTPError(http.StatusBadRequest, "set either url or folder, not both")
	case body.URL != "":
		req.Kind = rag.KindURL
		req.URL = body.URL
	case body.Folder != "":
		folder, err := s.resolveFolder(body.Folder)
		if err != nil {
			return err
		}
		req.Kind = rag.KindFolder
		req.Folder = folder
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "url or folder is required")
	}

	return s.ingest(c, req)
}

// resolveFolder confines folder to the configured root.
func (s *Server) resolveFolder(folder string) (string, error) {
	if s.config.FolderRoot == "" {
		return "", echo.NewHTTPError(http.StatusForbidden, "folder ingestion is disabled")
	}
	resolved, err := sanitize.ConfinePath(folder, s.config.FolderRoot)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return resolved, nil
}

// handleUpload ingests multipart-uploaded PDF and text files.
func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form data")
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("no files in field %q", uploadField))
	}

	files := make([]rag.File, 0, len(headers))
	for _, h := range headers {
		data, err := readUpload(h)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("reading %s: %v", h.Filename, err))
		}
		files = append(files, rag.File{Name: h.Filename, Data: data})
	}

	overwrite, _ := strconv.ParseBool(c.FormValue("overwrite"))
	return s.ingest(c, rag.IngestRequest{Kind: rag.KindUpload, Files: files, Overwrite: overwrite})
}

func readUpload(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ingest runs req and maps the report to a response. A request where every
// source failed is 422.
func (s *Server) ingest(c echo.Context, req rag.IngestRequest) error {
	ctx := c.Request().Context()
	report, err := s.service.Ingest(ctx, req)
	switch {
	case errors.Is(err, rag.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		logging.FromContext(ctx).Error("ingest failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	status := http.StatusOK
	if report.ChunksEmbedded == 0 && len(report.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, IngestResponse{
		Message:      fmt.Sprintf("Embedded %d chunks from %d sources", report.ChunksEmbedded, len(report.Sources)),
		IngestReport: report,
	})
}

// handleClearCache drops cached answers.
func (s *Server) handleClearCache(c echo.Context) error {
	s.service.ClearCache()
	return c.JSON(http.StatusOK, MessageResponse{Message: "Query cache cleared"})
}

// handleClearCollection deletes every stored chunk.
func (s *Server) handleClearCollection(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.service.ClearCollection(ctx); err != nil {
		logging.FromContext(ctx).Error("clear collection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear collection")
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Collection cleared"})
}
