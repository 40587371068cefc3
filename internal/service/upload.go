package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxUploadFiles = 5
	thumbnailWidth = 320
)

// BlobStore keeps attachment objects. URL results of a non-public store
// expire and are never persisted.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	URL(ctx context.Context, key string) (string, error)
	Public() bool
}

type UploadFile struct {
	Filename string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

type UploadResult struct {
	ID        string             `json:"id"`
	Filename  string             `json:"filename"`
	URL       string             `json:"url"`
	FileType  domain.MessageType `json:"fileType"`
	MimeType  string             `json:"mimeType"`
	FileSize  int64              `json:"fileSize"`
	Thumbnail string             `json:"thumbnail,omitempty"`
	Width     int                `json:"width,omitempty"`
	Height    int                `json:"height,omitempty"`
}

type UploadService struct {
	blobs    BlobStore
	uploads  repository.UploadRepository
	linkBase string
	log      *zap.Logger
}

// NewUploadService builds the upload service. linkBase is the route prefix
// under which GET <linkBase>/:id/url resolves a stored upload; it is used
// for attachment URLs when the blob store is private.
func NewUploadService(blobs BlobStore, uploads repository.UploadRepository, linkBase string, log *zap.Logger) *UploadService {
	return &UploadService{blobs: blobs, uploads: uploads, linkBase: strings.TrimRight(linkBase, "/"), log: log}
}

// Upload stores up to MaxUploadFiles attachments. Images also get a JPEG
// thumbnail. The batch is validated before anything is stored.
func (s *UploadService) Upload(ctx context.Context, caller domain.Identity, files []UploadFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, domain.Invalidf("No files uploaded")
	}
	if len(files) > MaxUploadFiles {
		return nil, domain.Invalidf("At most %d files can be uploaded at once", MaxUploadFiles)
	}
	for _, f := range files {
		if f.Size > domain.MaxAttachmentSize {
			return nil, domain.TooLargef("File %s exceeds the 25MB limit", f.Filename)
		}
		if f.Size == 0 {
			return nil, domain.Invalidf("File %s is empty", f.Filename)
		}
	}

	out := make([]UploadResult, 0, len(files))
	for _, f := range files {
		res, err := s.store(ctx, caller, f)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *UploadService) store(ctx context.Context, caller domain.Identity, f UploadFile) (UploadResult, error) {
	rc, err := f.Open()
	if err != nil {
		return UploadResult{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, domain.MaxAttachmentSize+1))
	if err != nil {
		return UploadResult{}, err
	}
	if int64(len(data)) > domain.MaxAttachmentSize {
		return UploadResult{}, domain.TooLargef("File %s exceeds the 25MB limit", f.Filename)
	}

	mime := f.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if i := strings.Index(mime, ";"); i > 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	kind := domain.KindForMIME(mime)
	name := safeFilename(f.Filename)
	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s/%s_%s", caller.Tenant(), caller.UserID.Hex(), id, name)

	if err := s.blobs.Put(ctx, key, mime, bytes.NewReader(data)); err != nil {
		return UploadResult{}, err
	}
	url, err := s.link(ctx, id, key, false)
	if err != nil {
		return UploadResult{}, err
	}
	res := UploadResult{ID: id, Filename: f.Filename, URL: url, FileType: kind, MimeType: mime, FileSize: int64(len(data))}
	thumbKey := ""

	if kind == domain.MessageImage {
		thumb, w, h, err := thumbnail(data)
		if err != nil {
			s.log.Warn("thumbnail", zap.String("key", key), zap.Error(err))
		} else {
			res.Width, res.Height = w, h
			tk := "thumbs/" + key + ".jpg"
			if err := s.blobs.Put(ctx, tk, "image/jpeg", bytes.NewReader(thumb)); err != nil {
				s.log.Warn("thumbnail upload", zap.String("key", key), zap.Error(err))
			} else if turl, err := s.link(ctx, id, tk, true); err == nil {
				res.Thumbnail, thumbKey = turl, tk
			}
		}
	}

	rec := &domain.Upload{
		ID:        id,
		TenantID:  caller.Tenant(),
		UserID:    caller.UserID,
		Key:       key,
		URL:       res.URL,
		Thumbnail: res.Thumbnail,
		ThumbKey:  thumbKey,
		Filename:  f.Filename,
		FileType:  kind,
		MimeType:  mime,
		Size:      res.FileSize,
		CreatedAt: nowUTC(),
	}
	if err := s.uploads.Save(ctx, rec); err != nil {
		return UploadResult{}, err
	}
	return res, nil
}

// link returns the URL stored with an attachment: the object URL for a
// public store, otherwise the stable route that re-signs on every fetch.
func (s *UploadService) link(ctx context.Context, id, key string, thumb bool) (string, error) {
	if s.blobs.Public() {
		return s.blobs.URL(ctx, key)
	}
	u := s.linkBase + "/" + id + "/url"
	if thumb {
		u += "?variant=thumbnail"
	}
	return u, nil
}

// URL resolves an upload of the caller's tenant to a fetchable object URL.
// Uploads from other tenants are reported as missing.
func (s *UploadService) URL(ctx context.Context, caller domain.Identity, id string, thumb bool) (string, error) {
	rec, err := s.uploads.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", domain.NotFoundf("Upload not found")
	}
	if err != nil {
		return "", err
	}
	if rec.TenantID != caller.Tenant() {
		return "", domain.NotFoundf("Upload not found")
	}
	key := rec.Key
	if thumb {
		if rec.ThumbKey == "" {
			return "", domain.NotFoundf("Upload has no thumbnail")
		}
		key = rec.ThumbKey
	}
	return s.blobs.URL(ctx, key)
}

func thumbnail(data []byte) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	small := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	clean = strings.TrimLeft(clean, ".")
	if clean == "" {
		return "file"
	}
	return clean
}
