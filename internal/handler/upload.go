package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dukerupert/nonna/internal/blob"
	"github.com/dukerupert/nonna/internal/model"
)

// sniffLen matches what mimetype reads by default.
const sniffLen = 3072

type UploadHandler struct {
	base
	blobs    blob.Store
	maxBytes int64
}

func NewUploadHandler(bs blob.Store, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{base: base{logger: logger}, blobs: bs, maxBytes: maxBytes}
}

func (h *UploadHandler) Photo(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "memories/photos", "image/")
}

func (h *UploadHandler) Audio(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "memories/audio", "audio/")
}

// upload stores the multipart "file" field if its sniffed type starts with
// kind and answers {"url": ...}.
func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request, prefix, kind string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var big *http.MaxBytesError
		if errors.As(err, &big) {
			h.fail(w, r, model.Invalid("file", "file too large"))
			return
		}
		h.fail(w, r, model.Invalid("file", "no file was submitted"))
		return
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.fail(w, r, err)
		return
	}
	head = head[:n]
	if n == 0 {
		h.fail(w, r, model.Invalid("file", "the submitted file is empty"))
		return
	}

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), kind) {
		h.fail(w, r, model.Invalid("file", "unsupported file type "+mt.String()))
		return
	}
	contentType, _, _ := strings.Cut(mt.String(), ";")

	name := hdr.Filename
	if !strings.EqualFold(extOf(name), mt.Extension()) && mt.Extension() != "" {
		name = "upload" + mt.Extension()
	}
	key := blob.Key(prefix, name, contentType)

	url, err := h.blobs.Store(r.Context(), io.MultiReader(bytes.NewReader(head), file), hdr.Size, contentType, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("media stored", "key", key, "content_type", contentType, "size", hdr.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
