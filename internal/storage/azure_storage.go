package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

const azureBlobHostSuffix = ".blob.core.windows.net"

// AzureBlobFetcher downloads https://<account>.blob.core.windows.net/<container>/<blob>
// references. The configured account uses its shared key; other accounts (or
// SAS-signed URLs) are read anonymously.
type AzureBlobFetcher struct {
	accountName string
	accountKey  string
	tempDir     string
	maxBytes    int64

	mu      sync.Mutex
	clients map[string]*azblob.Client
}

// NewAzureBlobFetcher creates a blob fetcher. accountName and accountKey may be empty.
func NewAzureBlobFetcher(accountName, accountKey, tempDir string, maxBytes int64) (*AzureBlobFetcher, error) {
	fetcher := &AzureBlobFetcher{
		accountName: accountName,
		accountKey:  accountKey,
		tempDir:     tempDir,
		maxBytes:    maxBytes,
		clients:     make(map[string]*azblob.Client),
	}

	if accountName != "" && accountKey != "" {
		credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, apperrors.NewSetupError("invalid Azure storage credentials", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(accountServiceURL(accountName), credential, nil)
		if err != nil {
			return nil, apperrors.NewSetupError("cannot create Azure blob client", err)
		}
		fetcher.clients[accountName] = client
	}

	return fetcher, nil
}

// IsAzureBlobHost reports whether host is an Azure blob endpoint
func IsAzureBlobHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), azureBlobHostSuffix)
}

func (s *AzureBlobFetcher) Fetch(ctx context.Context, blobURL string) (*LocalImage, error) {
	account, container, blobName, sas, err := parseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor(account, sas)
	if err != nil {
		return nil, downloadError(blobURL, err)
	}

	response, err := client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return nil, downloadError(blobURL, err)
	}
	defer response.Body.Close()

	if s.maxBytes > 0 && response.ContentLength != nil && *response.ContentLength > s.maxBytes {
		return nil, downloadError(blobURL, fmt.Errorf("image exceeds %d bytes", s.maxBytes))
	}

	local, err := saveToTemp(blobURL, s.tempDir, response.Body, s.maxBytes)
	if err != nil {
		return nil, downloadError(blobURL, err)
	}
	return local, nil
}

func (s *AzureBlobFetcher) clientFor(account, sas string) (*azblob.Client, error) {
	if sas != "" {
		return azblob.NewClientWithNoCredential(accountServiceURL(account)+"?"+sas, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[account]; ok {
		return client, nil
	}
	client, err := azblob.NewClientWithNoCredential(accountServiceURL(account), nil)
	if err != nil {
		return nil, err
	}
	s.clients[account] = client
	return client, nil
}

// parseBlobURL splits a blob URL into account, container, blob name and SAS query
func parseBlobURL(blobURL string) (account, container, blobName, sas string, err error) {
	parsed, err := url.Parse(blobURL)
	if err != nil {
		return "", "", "", "", apperrors.NewValidationError("Invalid URL format", err)
	}

	host := parsed.Hostname()
	if !IsAzureBlobHost(host) {
		return "", "", "", "", apperrors.NewValidationError(fmt.Sprintf("not an Azure blob URL: %s", blobURL), nil)
	}
	account = host[:len(host)-len(azureBlobHostSuffix)]

	container, blobName, found := strings.Cut(strings.TrimPrefix(parsed.Path, "/"), "/")
	if !found || container == "" || blobName == "" {
		return "", "", "", "", apperrors.NewValidationError(fmt.Sprintf("blob URL must name a container and a blob: %s", blobURL), nil)
	}

	return account, container, blobName, parsed.RawQuery, nil
}

func accountServiceURL(account string) string {
	return fmt.Sprintf("https://%s%s/", account, azureBlobHostSuffix)
}
