package handlers

import (
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MaxUploadSize caps a single image upload.
const MaxUploadSize = 5 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// UploadHandler stores product images on local disk.
type UploadHandler struct {
	dir       string
	urlPrefix string
}

// NewUploadHandler constructs UploadHandler. Files land in dir and are
// served under urlPrefix.
func NewUploadHandler(dir, urlPrefix string) *UploadHandler {
	return &UploadHandler{dir: dir, urlPrefix: urlPrefix}
}

// UploadImage saves the multipart "image" field under a random name.
func (h *UploadHandler) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}

	if file.Size > MaxUploadSize {
		return fiber.NewError(fiber.StatusBadRequest, "image must not exceed 5 MB")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return fiber.NewError(fiber.StatusBadRequest, "only jpg, jpeg, png, webp and gif images are allowed")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	_ = src.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return fiber.NewError(fiber.StatusBadRequest, "image file is empty")
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return fiber.NewError(fiber.StatusBadRequest, "file is not an image")
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}

	name := uuid.NewString() + ext
	if err := c.SaveFile(file, filepath.Join(h.dir, name)); err != nil {
		return err
	}

	log.Printf("[Upload] stored %s (%d bytes)", name, file.Size)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"filename": name,
			"url":      path.Join(h.urlPrefix, name),
		},
	})
}
