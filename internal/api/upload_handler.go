package api

import (
	"io"
	"mime/multipart"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/gofiber/fiber/v2"
)

type UploadHandler struct {
	svc     *service.UploadService
	timeout time.Duration
}

func NewUploadHandler(svc *service.UploadService, timeout time.Duration) *UploadHandler {
	return &UploadHandler{svc: svc, timeout: timeout}
}

// POST /upload (multipart/form-data, field "files")
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return domain.Invalidf("expected multipart form data")
	}
	headers := append(form.File["files"], form.File["file"]...)
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.UploadFile{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return openPart(fh) },
		})
	}

	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := h.svc.Upload(ctx, ident, files)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, res)
}

// GET /upload/:id/url?variant=thumbnail&redirect=true
func (h *UploadHandler) URL(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	url, err := h.svc.URL(ctx, ident, c.Params("id"), c.Query("variant") == "thumbnail")
	if err != nil {
		return err
	}
	if c.QueryBool("redirect") {
		return c.Redirect(url, fiber.StatusFound)
	}
	return JSONSuccess(c, fiber.StatusOK, fiber.Map{"url": url})
}

func openPart(fh *multipart.FileHeader) (io.ReadCloser, error) {
	return fh.Open()
}
