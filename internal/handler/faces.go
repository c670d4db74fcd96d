package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/auth"
	"classattend/internal/faceclient"
	"classattend/internal/identity"
)

// imageRequest carries either a hosted image or inline base64 data that is
// uploaded before encoding.
type imageRequest struct {
	StudentID   string `json:"student_id"`
	ImageURL    string `json:"image_url"`
	ImageBase64 string `json:"image_base64"`
}

func (h *Handler) registerFace(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	personID, ok := subjectFor(c, req.StudentID)
	if !ok {
		return
	}
	url, ok := h.imageURL(c, req)
	if !ok {
		return
	}
	h.register(c, personID, url)
}

// maxUploadBytes caps multipart registration images.
const maxUploadBytes = 8 << 20

// uploadFace registers a face from a multipart "image" file.
func (h *Handler) uploadFace(c *gin.Context) {
	personID, ok := subjectFor(c, c.PostForm("student_id"))
	if !ok {
		return
	}
	if h.uploader == nil {
		unavailable(c, "image storage")
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, apperr.Invalid("multipart field image required"))
		return
	}
	if fh.Size > maxUploadBytes {
		fail(c, apperr.Invalid("image exceeds %d bytes", maxUploadBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, apperr.Invalid("unreadable image: %v", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		fail(c, apperr.Invalid("unreadable image: %v", err))
		return
	}
	res, err := h.uploader.UploadBytes(c.Request.Context(), data, fh.Filename)
	if err != nil {
		uploadFailed(c, err)
		return
	}
	h.register(c, personID, res.SecureURL)
}

// register encodes the image at url and stores it as personID's reference.
func (h *Handler) register(c *gin.Context, personID, url string) {
	embedding, ok := h.encode(c, url)
	if !ok {
		return
	}
	v := identity.Vector{PersonID: personID, Embedding: embedding, ImageRef: url}
	if err := identity.Register(c.Request.Context(), h.vectors, v); err != nil {
		fail(c, err)
		return
	}
	log.Printf("face registered for %s (%d dims)", personID, len(embedding))
	c.JSON(http.StatusCreated, gin.H{"student_id": personID, "image_ref": url, "dimensions": len(embedding)})
}

func (h *Handler) faceStatus(c *gin.Context) {
	personID, ok := subjectFor(c, c.Query("student_id"))
	if !ok {
		return
	}
	v, found, err := h.vectors.Get(c.Request.Context(), personID)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"student_id": personID, "registered": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id": personID,
		"registered": true,
		"image_ref":  v.ImageRef,
		"updated_at": v.UpdatedAt,
	})
}

// verify checks a student in from a precomputed embedding or an image.
func (h *Handler) verify(c *gin.Context) {
	var req struct {
		imageRequest
		Embedding []float32 `json:"embedding"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	studentID, ok := subjectFor(c, req.StudentID)
	if !ok {
		return
	}
	candidate := req.Embedding
	if len(candidate) == 0 {
		url, ok := h.imageURL(c, req.imageRequest)
		if !ok {
			return
		}
		if candidate, ok = h.encode(c, url); !ok {
			return
		}
	}
	rec, d, err := h.svc.CheckInBiometric(c.Request.Context(), c.Param("id"), studentID, candidate)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "decision": d})
}

func (h *Handler) verifyAsync(c *gin.Context) {
	if h.verifier == nil {
		unavailable(c, "async verification")
		return
	}
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	studentID, ok := subjectFor(c, req.StudentID)
	if !ok {
		return
	}
	url, ok := h.imageURL(c, req)
	if !ok {
		return
	}
	res, err := h.verifier.Enqueue(c.Request.Context(), c.Param("id"), studentID, url)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *Handler) verification(c *gin.Context) {
	if h.verifier == nil {
		unavailable(c, "async verification")
		return
	}
	res, err := h.verifier.Result(c.Request.Context(), c.Param("job"))
	if err != nil {
		fail(c, err)
		return
	}
	if cl := claims(c); cl.Role != auth.RoleInstructor && res.StudentID != cl.Subject {
		fail(c, apperr.NotFound("verification", c.Param("job")))
		return
	}
	c.JSON(http.StatusOK, res)
}

// imageURL returns the hosted image for req, uploading inline data first.
func (h *Handler) imageURL(c *gin.Context, req imageRequest) (string, bool) {
	if url := strings.TrimSpace(req.ImageURL); url != "" {
		return url, true
	}
	if req.ImageBase64 == "" {
		fail(c, apperr.Invalid("image_url or image_base64 required"))
		return "", false
	}
	if h.uploader == nil {
		unavailable(c, "image storage")
		return "", false
	}
	res, err := h.uploader.UploadBase64(c.Request.Context(), req.ImageBase64)
	if err != nil {
		uploadFailed(c, err)
		return "", false
	}
	return res.SecureURL, true
}

func uploadFailed(c *gin.Context, err error) {
	log.Printf("image upload failed: %v", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed", "code": "upload_failed"})
}

func (h *Handler) encode(c *gin.Context, url string) ([]float32, bool) {
	embedding, err := h.encoder.Encode(c.Request.Context(), url)
	switch {
	case err == nil:
		return embedding, true
	case errors.Is(err, faceclient.ErrNoFace), errors.Is(err, faceclient.ErrMultipleFaces):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "no_usable_face"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		log.Printf("face encoding failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face service unavailable", "code": "encoder_unavailable"})
	}
	return nil, false
}
