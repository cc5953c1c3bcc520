package rest

import (
	"io"
	"log"
	"net/http"
)

const maxProofSize = 5 << 20

var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

func (h *Handler) uploadProof(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}
	if h.proofs == nil {
		ErrorInternal(w, "file storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize+(1<<20))
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		ErrorBadRequest(w, "invalid form or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorBadRequest(w, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProofSize+1))
	if err != nil {
		ErrorBadRequest(w, "failed to read file")
		return
	}
	if len(data) > maxProofSize {
		ErrorBadRequest(w, "file must be at most 5 MB")
		return
	}

	contentType := sniffContentType(data)
	if !allowedProofTypes[contentType] {
		ErrorBadRequest(w, "file must be an image or a PDF")
		return
	}

	key, err := h.proofs.Save(r.Context(), header.Filename, contentType, data)
	if err != nil {
		log.Printf("[HTTP] uploadProof save error: %v", err)
		ErrorInternal(w, "failed to save file")
		return
	}
	url, err := h.proofs.URL(r.Context(), key)
	if err != nil {
		log.Printf("[HTTP] uploadProof url error: %v", err)
		ErrorInternal(w, "failed to build file url")
		return
	}

	log.Printf("[HTTP] user=%d uploaded proof %s (%d bytes)", requester.ID, key, len(data))
	SuccessCreated(w, "file uploaded", map[string]string{"key": key, "url": url})
}
