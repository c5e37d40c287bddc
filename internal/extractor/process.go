// Package extractor reads image metadata (dimensions, density, format) from
// downloaded files, either through an external command or in process.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/pkg/models"
)

// UnknownFormat is reported when the extractor cannot name the format
const UnknownFormat = "unknown"

// Extractor reads metadata from a local image file
type Extractor interface {
	Extract(ctx context.Context, path string) (models.ImageMetadata, error)
}

// Payload is the JSON document an extractor command prints on stdout
type Payload struct {
	Width   *int     `json:"Width"`
	Height  *int     `json:"Height"`
	Density *float64 `json:"Density"`
	Format  *string  `json:"Format"`
}

// ToMetadata converts the wire payload, defaulting Format to "unknown"
func (p Payload) ToMetadata() models.ImageMetadata {
	metadata := models.ImageMetadata{
		Width:   p.Width,
		Height:  p.Height,
		Density: p.Density,
		Format:  UnknownFormat,
	}
	if p.Format != nil && strings.TrimSpace(*p.Format) != "" {
		metadata.Format = *p.Format
	}
	return metadata
}

// ProcessExtractor runs `Command Args... <path>` and decodes its stdout
type ProcessExtractor struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func NewProcessExtractor(command string, args []string, timeout time.Duration) *ProcessExtractor {
	return &ProcessExtractor{Command: command, Args: args, Timeout: timeout}
}

func (p *ProcessExtractor) Extract(ctx context.Context, path string) (models.ImageMetadata, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, p.Args...), path)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return models.ImageMetadata{}, apperrors.NewTimeoutError(fmt.Sprintf("metadata extraction timed out after %s", p.Timeout), ctxErr)
		}
		return models.ImageMetadata{}, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = fmt.Sprintf("metadata extractor exited with code %d", exitErr.ExitCode())
		}
		return models.ImageMetadata{}, apperrors.NewProcessingError(message, nil)
	case err != nil:
		return models.ImageMetadata{}, apperrors.NewProcessingError(fmt.Sprintf("cannot start metadata extractor %s", p.Command), err)
	}

	return Decode(stdout.Bytes())
}

// Decode parses extractor stdout into metadata
func Decode(data []byte) (models.ImageMetadata, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.ImageMetadata{}, apperrors.NewProcessingError("metadata extractor printed nothing", nil)
	}

	var payload Payload
	if err := sonic.Unmarshal(trimmed, &payload); err != nil {
		return models.ImageMetadata{}, apperrors.NewProcessingError("cannot parse metadata extractor output", err)
	}
	return payload.ToMetadata(), nil
}
