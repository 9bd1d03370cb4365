// Package apipath builds the research backend's well-known request paths.
package apipath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Artifact kinds accepted by the backend download endpoint.
const (
	ArtifactPDF = "pdf"
	ArtifactPPT = "ppt"
)

// ErrUnknownArtifact is returned for artifact kinds the backend does not serve.
var ErrUnknownArtifact = errors.New("unknown artifact kind")

// NormalizeArtifact maps a requested artifact kind onto the backend's
// vocabulary. "pptx" is accepted as an alias for the slide deck.
func NormalizeArtifact(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ArtifactPDF:
		return ArtifactPDF, nil
	case ArtifactPPT, "pptx":
		return ArtifactPPT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArtifact, kind)
	}
}

// ArtifactFilename returns the object name the backend stores an artifact
// under, e.g. "abc_report.pdf" or "abc_slides.pptx".
func ArtifactFilename(jobID, kind string) string {
	if kind == ArtifactPPT {
		return jobID + "_slides.pptx"
	}
	return jobID + "_report.pdf"
}

// Builder constructs relative backend paths.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// Submit returns the path for creating a research job.
func (b Builder) Submit() string {
	return "/api/research"
}

// Status returns the status path for a job.
func (b Builder) Status(jobID string) string {
	return fmt.Sprintf("/api/research/%s/status", b.escape(jobID))
}

// Jobs returns the job history path.
func (b Builder) Jobs() string {
	return "/api/jobs"
}

// Download returns the artifact download path for a job. kind is inserted
// as given; callers normalize it first.
func (b Builder) Download(jobID, kind string) string {
	return fmt.Sprintf("/api/research/%s/download/%s", b.escape(jobID), b.escape(kind))
}

// Resolve joins a relative path onto base, keeping any path prefix base
// carries (e.g. a reverse proxy mount point). An empty base returns path
// unchanged.
func (b Builder) Resolve(base, path string) (string, error) {
	if base == "" {
		return path, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("base url must not carry a query or fragment: %q", base)
	}
	return strings.TrimRight(base, "/") + path, nil
}

func (b Builder) escape(segment string) string {
	return url.PathEscape(segment)
}
