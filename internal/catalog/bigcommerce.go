package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

const imagesPageSize = 250

// BigCommerceOptions configures the BigCommerce v3 catalog client
type BigCommerceOptions struct {
	BaseURL     string
	StoreHash   string
	AccessToken string
	Timeout     time.Duration
	// MaxConnsPerHost caps concurrent connections to the API
	MaxConnsPerHost int
}

// BigCommerceResolver looks a SKU up as a product and lists its images
type BigCommerceResolver struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewBigCommerceResolver(options BigCommerceOptions) *BigCommerceResolver {
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	if options.MaxConnsPerHost <= 0 {
		options.MaxConnsPerHost = 4
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     options.MaxConnsPerHost,
		MaxIdleConnsPerHost: options.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &BigCommerceResolver{
		client:  &http.Client{Transport: transport, Timeout: options.Timeout},
		baseURL: fmt.Sprintf("%s/stores/%s/v3", strings.TrimRight(options.BaseURL, "/"), url.PathEscape(options.StoreHash)),
		token:   options.AccessToken,
	}
}

type bcPagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type bcMeta struct {
	Pagination bcPagination `json:"pagination"`
}

type bcProductList struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

type bcImage struct {
	URLStandard  string `json:"url_standard"`
	URLZoom      string `json:"url_zoom"`
	URLThumbnail string `json:"url_thumbnail"`
}

type bcImageList struct {
	Data []bcImage `json:"data"`
	Meta bcMeta    `json:"meta"`
}

func (r *BigCommerceResolver) ResolveImages(ctx context.Context, sku string) ([]string, error) {
	productID, found, err := r.findProductID(ctx, sku)
	if err != nil || !found {
		return nil, err
	}

	var urls []string
	for page := 1; ; page++ {
		var list bcImageList
		path := fmt.Sprintf("/catalog/products/%d/images?limit=%d&page=%d", productID, imagesPageSize, page)
		if err := r.get(ctx, path, &list); err != nil {
			return nil, err
		}

		for _, img := range list.Data {
			if u := preferredURL(img); u != "" {
				urls = append(urls, u)
			}
		}

		if len(list.Data) == 0 || page >= list.Meta.Pagination.TotalPages {
			break
		}
	}
	return urls, nil
}

func (r *BigCommerceResolver) findProductID(ctx context.Context, sku string) (int64, bool, error) {
	var list bcProductList
	if err := r.get(ctx, "/catalog/products?sku="+url.QueryEscape(sku)+"&limit=1", &list); err != nil {
		return 0, false, err
	}
	if len(list.Data) == 0 {
		return 0, false, nil
	}
	return list.Data[0].ID, true, nil
}

func (r *BigCommerceResolver) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return apperrors.NewResolutionError("cannot build catalog request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Auth-Token", r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return apperrors.NewResolutionError("catalog request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperrors.NewResolutionError("cannot read catalog response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("X-Rate-Limit-Time-Reset-Ms")
		if retryAfter == "" {
			retryAfter = resp.Header.Get("Retry-After")
		}
		message := "catalog API rate limited"
		if retryAfter != "" {
			message += " (reset " + retryAfter + ")"
		}
		return apperrors.NewResolutionError(message, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return apperrors.NewResolutionError("catalog API returned status "+strconv.Itoa(resp.StatusCode), nil)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return apperrors.NewResolutionError("cannot parse catalog response", err)
	}
	return nil
}

func preferredURL(img bcImage) string {
	for _, candidate := range []string{img.URLStandard, img.URLZoom, img.URLThumbnail} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}
