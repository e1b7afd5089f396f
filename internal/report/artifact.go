package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// ArtifactKind is the kind recorded for report artifacts.
const ArtifactKind = "report"

// FileName returns the report file name for a session.
func FileName(sessionID string) string {
	return "report_" + sessionID + ".md"
}

// Digest returns the hex BLAKE3 digest of content.
func Digest(content []byte) (string, error) {
	hasher := blake3.New()
	if _, err := hasher.Write(content); err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// Write stores the report under dir and returns its artifact record.
func Write(dir, sessionID, content string, now time.Time) (models.Artifact, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.Artifact{}, fmt.Errorf("create reports directory: %w", err)
	}

	name := FileName(sessionID)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return models.Artifact{}, fmt.Errorf("write report: %w", err)
	}

	digest, err := Digest([]byte(content))
	if err != nil {
		return models.Artifact{}, err
	}

	return models.Artifact{
		Name:      name,
		Path:      path,
		Kind:      ArtifactKind,
		Digest:    digest,
		CreatedAt: now,
	}, nil
}
