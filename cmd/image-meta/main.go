// Command image-meta prints the dimensions, density and format of an image
// as a single JSON line: {"Width":..,"Height":..,"Density":..,"Format":..}.
package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/extractor"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: image-meta <image-path>")
		os.Exit(1)
	}

	metadata, err := extractor.ReadHeader(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, apperrors.Describe(err))
		os.Exit(1)
	}

	format := metadata.Format
	out, err := sonic.Marshal(extractor.Payload{
		Width:   metadata.Width,
		Height:  metadata.Height,
		Density: metadata.Density,
		Format:  &format,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
