package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/slipmail/slipmail/internal/model"
)

type recipientJSON struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// importEntry is one row of an import payload. JSON is valid YAML, so one
// decoder handles both.
type importEntry struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

func recipientsJSON(in []model.Recipient) []recipientJSON {
	out := make([]recipientJSON, 0, len(in))
	for _, r := range in {
		out = append(out, recipientJSON{Email: r.Email, Name: r.DisplayName, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
	}
	return out
}

func (s *Server) handleListRecipients(c *gin.Context) {
	recipients, err := s.deps.Directory.ListRecipients(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipientsJSON(recipients)})
}

func (s *Server) handleUpsertRecipient(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	r, err := s.deps.Directory.UpsertRecipient(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipientsJSON([]model.Recipient{r})[0])
}

func (s *Server) handleDeleteRecipient(c *gin.Context) {
	if err := s.deps.Directory.DeleteRecipient(c.Request.Context(), c.Param("email")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "recipient deleted"})
}

// handleImportRecipients accepts a YAML or JSON list of {email, name}
// entries, or a document with that list under "recipients".
func (s *Server) handleImportRecipients(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	entries, err := parseImport(data)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	in := make([]model.Recipient, 0, len(entries))
	for _, e := range entries {
		in = append(in, model.Recipient{Email: e.Email, DisplayName: e.Name})
	}
	n, err := s.deps.Directory.ImportRecipients(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.log.Info().Int("imported", n).Msg("recipients imported")
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func parseImport(data []byte) ([]importEntry, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse import: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("import payload is empty")
	}

	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		if !hasKey(root, "recipients") {
			return nil, fmt.Errorf("import mapping has no recipients key")
		}
		var wrapped struct {
			Recipients []importEntry `yaml:"recipients"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parse import: %w", err)
		}
		return wrapped.Recipients, nil
	}

	var entries []importEntry
	if err := root.Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse import: %w", err)
	}
	return entries, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}
