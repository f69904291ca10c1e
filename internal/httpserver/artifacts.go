package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slipmail/slipmail/internal/model"
)

type artifactJSON struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	SequenceIndex int    `json:"sequenceIndex"`
	URL           string `json:"url"`
	Size          int64  `json:"size"`
	Hash          string `json:"hash"`
}

type generationJSON struct {
	Generation uint64         `json:"generation"`
	CreatedAt  *time.Time     `json:"createdAt,omitempty"`
	Artifacts  []artifactJSON `json:"artifacts"`
}

func (s *Server) artifactJSON(a model.Artifact) artifactJSON {
	return artifactJSON{
		ID:            a.ID,
		Label:         a.Label,
		SequenceIndex: a.SequenceIndex,
		URL:           s.cfg.PublicBaseURL + "/files/" + a.Location,
		Size:          a.Size,
		Hash:          a.ContentHash,
	}
}

func (s *Server) generationJSON(g model.Generation) generationJSON {
	out := generationJSON{
		Generation: g.Number,
		Artifacts:  make([]artifactJSON, 0, len(g.Artifacts)),
	}
	if !g.CreatedAt.IsZero() {
		out.CreatedAt = &g.CreatedAt
	}
	for _, a := range g.Artifacts {
		out.Artifacts = append(out.Artifacts, s.artifactJSON(a))
	}
	return out
}

// handleSplit splits an uploaded composite PDF and publishes the pages as
// the new generation. On any failure the previous generation stays current.
func (s *Server) handleSplit(c *gin.Context) {
	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		s.writeError(c, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, err)
			return
		}
		badRequest(c, "multipart field \"file\" is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}

	artifacts, err := s.deps.Splitter.Split(c.Request.Context(), name, data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	gen, err := s.deps.Registry.ReplaceAll(artifacts)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.log.Info().
		Str("source", name).
		Int("pages", len(artifacts)).
		Uint64("generation", gen).
		Msg("document split")
	c.JSON(http.StatusCreated, s.generationJSON(model.Generation{Number: gen, Artifacts: artifacts}))
}

func (s *Server) handleListArtifacts(c *gin.Context) {
	c.JSON(http.StatusOK, s.generationJSON(s.deps.Registry.Snapshot()))
}

func (s *Server) handleGetArtifact(c *gin.Context) {
	a, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.artifactJSON(a))
}

func (s *Server) handleFile(c *gin.Context) {
	data, err := s.deps.Blobs.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400, immutable")
	c.Data(http.StatusOK, model.PDFContentType, data)
}
