package azure

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/deploy"
	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
)

const defaultStaticSiteContainer = "$web"

// StaticSites opens the static website container of storage accounts.
type StaticSites struct {
	cred       azcore.TokenCredential
	httpClient *http.Client
	hostSuffix string
	container  string
	logger     zerolog.Logger
}

// NewStaticSites creates a StaticSites for accounts under hostSuffix
// (blob.core.windows.net in the public cloud).
func NewStaticSites(cred azcore.TokenCredential, httpClient *http.Client, hostSuffix, container string, logger zerolog.Logger) *StaticSites {
	if container == "" {
		container = defaultStaticSiteContainer
	}
	return &StaticSites{
		cred:       cred,
		httpClient: httpClient,
		hostSuffix: hostSuffix,
		container:  container,
		logger:     logger,
	}
}

// ForAccount implements deploy.BlobStoreFactory.
func (s *StaticSites) ForAccount(ctx context.Context, target resourceid.Target) (deploy.BlobStore, error) {
	var opts *azblob.ClientOptions
	if s.httpClient != nil {
		opts = &azblob.ClientOptions{ClientOptions: policy.ClientOptions{Transport: s.httpClient}}
	}
	serviceURL := fmt.Sprintf("https://%s.%s/", target.InstanceID, s.hostSuffix)
	c, err := azblob.NewClient(serviceURL, s.cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &staticSiteStore{
		client:    c,
		container: s.container,
		logger:    s.logger.With().Str("account", target.InstanceID).Logger(),
	}, nil
}

type staticSiteStore struct {
	client    *azblob.Client
	container string
	logger    zerolog.Logger
}

func (s *staticSiteStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err == nil {
		s.logger.Info().Str("container", s.container).Msg("Created static site container")
		return nil
	}
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil
	}
	return apiError("create container", err)
}

func (s *staticSiteStore) List(ctx context.Context) ([]deploy.BlobItem, error) {
	var items []deploy.BlobItem
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apiError("list blobs", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, b := range page.Segment.BlobItems {
			if b == nil || b.Name == nil {
				continue
			}
			item := deploy.BlobItem{Name: *b.Name}
			if b.Properties != nil && b.Properties.ContentLength != nil {
				item.Size = *b.Properties.ContentLength
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *staticSiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, name, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return apiError("delete blob", err)
	}
	return nil
}

func (s *staticSiteStore) Upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.UploadFile(ctx, s.container, name, f, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return apiError("upload blob", err)
	}
	return nil
}
