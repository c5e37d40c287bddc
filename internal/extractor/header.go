package extractor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/pkg/models"
)

// headerLimit bounds how much of a file is scanned for density markers
const headerLimit = 256 * 1024

// BuiltinExtractor reads image headers in process instead of running a command
type BuiltinExtractor struct{}

func (BuiltinExtractor) Extract(ctx context.Context, path string) (models.ImageMetadata, error) {
	if err := ctx.Err(); err != nil {
		return models.ImageMetadata{}, err
	}
	return ReadHeader(path)
}

// ReadHeader reads dimensions and format from the image header, and density from
// the JFIF APP0 segment of JPEGs or the pHYs chunk of PNGs. Only the header
// is decoded, never the pixels.
func ReadHeader(path string) (models.ImageMetadata, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.ImageMetadata{}, apperrors.NewNotFoundError(fmt.Sprintf("File not found: %s", path), nil)
	}
	if err != nil {
		return models.ImageMetadata{}, apperrors.NewProcessingError(fmt.Sprintf("cannot open %s", path), err)
	}
	defer file.Close()

	header, err := io.ReadAll(io.LimitReader(file, headerLimit))
	if err != nil {
		return models.ImageMetadata{}, apperrors.NewProcessingError(fmt.Sprintf("cannot read %s", path), err)
	}

	config, format, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(header), file))
	if err != nil {
		return models.ImageMetadata{}, apperrors.NewProcessingError("Input file contains unsupported image format", err)
	}

	metadata := models.ImageMetadata{
		Width:  models.IntPtr(config.Width),
		Height: models.IntPtr(config.Height),
		Format: format,
	}

	switch format {
	case "jpeg":
		metadata.Density = jfifDensity(header)
	case "png":
		metadata.Density = pngDensity(header)
	}
	return metadata, nil
}

// jfifDensity walks JPEG segments up to the first scan looking for a JFIF
// APP0 with a physical unit (1 = dots per inch, 2 = dots per cm).
func jfifDensity(data []byte) *float64 {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil
		}
		marker := data[pos+1]
		if marker == 0xFF {
			pos++
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			return nil
		}

		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if length < 2 || pos+2+length > len(data) {
			return nil
		}
		segment := data[pos+4 : pos+2+length]

		if marker == 0xE0 && len(segment) >= 12 && bytes.Equal(segment[:5], []byte("JFIF\x00")) {
			units := segment[7]
			x := float64(binary.BigEndian.Uint16(segment[8:10]))
			switch units {
			case 1:
				return positive(x)
			case 2:
				return positive(math.Round(x * 2.54))
			default:
				return nil
			}
		}
		pos += 2 + length
	}
	return nil
}

// pngDensity reads the pHYs chunk; only the metre unit carries a physical density
func pngDensity(data []byte) *float64 {
	const signatureLen = 8
	pos := signatureLen
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		if chunkType == "IDAT" || chunkType == "IEND" {
			return nil
		}
		end := pos + 8 + length
		if length < 0 || end+4 > len(data) {
			return nil
		}
		if chunkType == "pHYs" && length >= 9 {
			chunk := data[pos+8 : end]
			perMetre := float64(binary.BigEndian.Uint32(chunk[0:4]))
			if chunk[8] != 1 {
				return nil
			}
			return positive(math.Round(perMetre * 0.0254))
		}
		pos = end + 4
	}
	return nil
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return models.FloatPtr(v)
}
