// Package catalog resolves a SKU to the image URLs the storefront holds for it.
package catalog

import (
	"context"
	"strings"
)

// Resolver returns the image URLs registered for a SKU. An unknown SKU or a
// product without images yields an empty list, not an error.
type Resolver interface {
	ResolveImages(ctx context.Context, sku string) ([]string, error)
}

// StaticResolver serves a fixed in-memory catalog with case-insensitive lookups
type StaticResolver struct {
	images map[string][]string
}

func NewStaticResolver(catalog map[string][]string) *StaticResolver {
	images := make(map[string][]string, len(catalog))
	for sku, urls := range catalog {
		key := normalizeSku(sku)
		// Blank entries are not images
		for _, ref := range urls {
			if ref = strings.TrimSpace(ref); ref != "" {
				images[key] = append(images[key], ref)
			}
		}
	}
	return &StaticResolver{images: images}
}

func (r *StaticResolver) ResolveImages(ctx context.Context, sku string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	urls := r.images[normalizeSku(sku)]
	return append([]string(nil), urls...), nil
}

// DemoCatalog is a small storefront fixture covering passing, failing and
// image-less SKUs.
func DemoCatalog() map[string][]string {
	return map[string][]string{
		"SKU001": {
			"https://picsum.photos/800/600",
			"https://picsum.photos/200/150",
		},
		"SKU002": {
			"https://picsum.photos/1200/800",
		},
		"SKU003": {},
		"SKU004": {
			"https://picsum.photos/1000/750",
			"https://picsum.photos/300/200",
			"https://picsum.photos/1500/1000",
		},
	}
}

func normalizeSku(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}
