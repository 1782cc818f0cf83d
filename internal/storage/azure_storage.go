package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type azureStorage struct {
	client   *azblob.Client
	account  string
	maxBytes int64
}

// NewAzureStorage creates a blob source authenticated with a shared key.
// Blob URLs must point at the same storage account.
func NewAzureStorage(accountName, accountKey string, maxBytes int64) (ImageSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	if maxBytes <= 0 {
		maxBytes = DefaultHTTPFetcherOptions().MaxBytes
	}
	return &azureStorage{client: client, account: accountName, maxBytes: maxBytes}, nil
}

// BlobLocation is a container/blob pair parsed from a blob URL.
type BlobLocation struct {
	Host      string
	Container string
	Blob      string
}

// ParseBlobURL splits https://<account>.blob.core.windows.net/<container>/<blob>.
func ParseBlobURL(blobURL string) (BlobLocation, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return BlobLocation{}, fmt.Errorf("invalid blob URL: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return BlobLocation{}, fmt.Errorf("invalid blob URL: container and blob are required")
	}
	return BlobLocation{Host: parts.Host, Container: parts.ContainerName, Blob: parts.BlobName}, nil
}

func (s *azureStorage) Fetch(ctx context.Context, blobURL string) ([]byte, error) {
	loc, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(loc.Host), strings.ToLower(s.account)+".") {
		return nil, fmt.Errorf("blob host %s does not belong to account %s", loc.Host, s.account)
	}

	resp, err := s.client.DownloadStream(ctx, loc.Container, loc.Blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	if resp.ContentLength != nil && *resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, *resp.ContentLength)
	}
	return readLimited(body, s.maxBytes)
}
