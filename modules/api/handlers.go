package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uvuchan/chanchu/domain/file"
	"github.com/uvuchan/chanchu/modules/activity"
	"github.com/uvuchan/chanchu/modules/registry"
	"golang.org/x/sync/errgroup"
)

const (
	batchConcurrency     = 4
	defaultActivityLimit = 50
	maxActivityLimit     = 1000
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket push channel
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	app.Get("/download/:id", m.downloadFile)
	app.Get("/get_all_files", m.getAllFiles)

	// REST API v1
	v1 := app.Group("/api/v1")
	v1.Post("/files", m.uploadFile)
	v1.Post("/files/batch", m.uploadBatch)
	v1.Get("/files", m.listFiles)
	v1.Get("/files/:id", m.getFile)
	v1.Delete("/files/:id", m.deleteFile)
	v1.Get("/activity", m.getActivity)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"connected_sessions": m.hub.ClientCount(),
			"files":              m.registry.Len(),
		},
	})
}

// uploadFile handles POST /api/v1/files.
func (m *Module) uploadFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Multipart part 'file' is required",
		})
	}

	fileName := c.FormValue("fileName")
	if fileName == "" {
		fileName = fh.Filename
	}
	in := registry.NewFile{
		FileName:     fileName,
		RelativePath: c.FormValue("relativePath"),
		UploadedBy:   c.FormValue("uploadedBy"),
	}

	rec, err := m.createFromPart(c.UserContext(), in, fh)
	if err != nil {
		return m.sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// uploadBatch handles POST /api/v1/files/batch. Every part is an
// independent create; one failure does not undo the others.
func (m *Module) uploadBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Expected a multipart form",
		})
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "At least one 'files' part is required",
		})
	}
	relPaths := form.Value["relativePaths"]
	uploadedBy := firstValue(form.Value["uploadedBy"])

	type result struct {
		rec file.Record
		err error
	}
	results := make([]result, len(parts))

	ctx := c.UserContext()
	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)
	for i, fh := range parts {
		in := registry.NewFile{
			FileName:   fh.Filename,
			UploadedBy: uploadedBy,
		}
		if i < len(relPaths) {
			in.RelativePath = relPaths[i]
		}
		g.Go(func() error {
			rec, err := m.createFromPart(ctx, in, fh)
			results[i] = result{rec: rec, err: err}
			return nil
		})
	}
	_ = g.Wait()

	resp := BatchUploadResponse{Uploaded: make([]file.Record, 0, len(parts))}
	var firstErr error
	allValidation := true
	for i, r := range results {
		if r.err != nil {
			code, _, msg := classify(r.err)
			resp.Errors = append(resp.Errors, BatchError{
				FileName: parts[i].Filename,
				Error:    code,
				Message:  msg,
			})
			if firstErr == nil {
				firstErr = r.err
			}
			if !errors.Is(r.err, registry.ErrValidation) {
				allValidation = false
			}
			continue
		}
		resp.Uploaded = append(resp.Uploaded, r.rec)
	}
	resp.Count = len(resp.Uploaded)

	if resp.Count == 0 {
		if allValidation {
			return c.Status(fiber.StatusBadRequest).JSON(resp)
		}
		return m.sendError(c, firstErr)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// createFromPart stores one multipart part under the upload timeout.
func (m *Module) createFromPart(ctx context.Context, in registry.NewFile, fh *multipart.FileHeader) (file.Record, error) {
	if m.cfg.MaxUploadSize > 0 && fh.Size > m.cfg.MaxUploadSize {
		return file.Record{}, fmt.Errorf("%w: %s exceeds %d bytes", registry.ErrPayloadTooLarge, fh.Filename, m.cfg.MaxUploadSize)
	}

	src, err := fh.Open()
	if err != nil {
		return file.Record{}, fmt.Errorf("%w: failed to open upload: %v", registry.ErrStorage, err)
	}
	defer src.Close()

	ctx, cancel := m.uploadContext(ctx)
	defer cancel()
	return m.registry.Create(ctx, in, src)
}

func (m *Module) uploadContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if m.cfg.UploadTimeout > 0 {
		return context.WithTimeout(parent, m.cfg.UploadTimeout)
	}
	return context.WithCancel(parent)
}

// listFiles handles GET /api/v1/files.
func (m *Module) listFiles(c *fiber.Ctx) error {
	files := m.registry.List()
	return c.JSON(FileListResponse{Files: files, Total: len(files)})
}

// getAllFiles handles GET /get_all_files.
func (m *Module) getAllFiles(c *fiber.Ctx) error {
	return c.JSON(m.registry.List())
}

// getFile handles GET /api/v1/files/:id.
func (m *Module) getFile(c *fiber.Ctx) error {
	rec, err := m.registry.Get(c.Params("id"))
	if err != nil {
		return m.sendError(c, err)
	}
	return c.JSON(rec)
}

// deleteFile handles DELETE /api/v1/files/:id.
func (m *Module) deleteFile(c *fiber.Ctx) error {
	rec, err := m.registry.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.sendError(c, err)
	}
	return c.JSON(DeleteResponse{Deleted: true, ID: rec.ID})
}

// downloadFile handles GET /download/:id.
func (m *Module) downloadFile(c *fiber.Ctx) error {
	rec, rc, err := m.registry.Open(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.sendError(c, err)
	}

	c.Set(fiber.HeaderContentType, detectContentType(rec.FileName))
	c.Set(fiber.HeaderContentDisposition, contentDisposition(rec.FileName))
	c.Set("X-File-ID", rec.ID)
	// fasthttp closes rc once the body is written. Records without a size
	// are streamed until EOF.
	size := int(rec.Size)
	if size <= 0 {
		size = -1
	}
	return c.SendStream(rc, size)
}

// getActivity handles GET /api/v1/activity.
func (m *Module) getActivity(c *fiber.Ctx) error {
	limit := defaultActivityLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxActivityLimit {
			limit = parsed
		}
	}

	resp := ActivityResponse{Entries: []activity.Entry{}}
	if m.feed == nil {
		return c.JSON(resp)
	}

	resp.Entries = m.feed.Recent(limit)
	summary, err := m.feed.Summary(c.UserContext())
	if err != nil {
		m.logger.Warn("Activity summary incomplete", "error", err)
	}
	resp.Summary = summary
	return c.JSON(resp)
}

// sendError writes the JSON error body for err.
func (m *Module) sendError(c *fiber.Ctx, err error) error {
	code, status, msg := classify(err)
	if status == fiber.StatusInternalServerError {
		m.logger.Error("Request failed",
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"path", c.Path(),
			"error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: code, Message: msg})
}

// classify maps a registry error to its error code, HTTP status and client
// message. Internal failures get a generic message.
func classify(err error) (string, int, string) {
	switch {
	case errors.Is(err, registry.ErrValidation):
		return "validation_error", fiber.StatusBadRequest, err.Error()
	case errors.Is(err, registry.ErrNotFound):
		return "not_found", fiber.StatusNotFound, err.Error()
	case errors.Is(err, registry.ErrPayloadTooLarge):
		return "payload_too_large", fiber.StatusRequestEntityTooLarge, err.Error()
	default:
		return "storage_error", fiber.StatusInternalServerError, "Failed to complete the operation"
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
