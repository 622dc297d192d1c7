package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/beacon-lab/project-beacon/internal/clients/notion"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

// CMS sync job actions.
const (
	CMSActionImportAll  = "import_all"
	CMSActionImportPage = "import_page"
)

// CMSJob is the queued descriptor for one CMS sync run. Jobs are enqueued by
// the scheduler or the Notion webhook; the work happens here.
type CMSJob struct {
	Action     string `json:"action"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty"`

	// Force imports unpublished pages too.
	Force bool `json:"force,omitempty"`
}

// ContentSource is the CMS read surface. Implemented by notion.Client.
type ContentSource interface {
	QueryDatabase(ctx context.Context, databaseID string, filter json.RawMessage, pageSize int) ([]notion.Page, error)
	GetPage(ctx context.Context, pageID string) (*notion.Page, error)
}

// CMSSync imports content from the CMS into the posts table.
type CMSSync struct {
	source  ContentSource
	content storage.ContentStore
}

// NewCMSSync creates the CMS sync processor.
func NewCMSSync(source ContentSource, content storage.ContentStore) *CMSSync {
	return &CMSSync{source: source, content: content}
}

// publishedFilter limits database queries to published pages.
var publishedFilter = json.RawMessage(`{"property":"Published","checkbox":{"equals":true}}`)

// Handle runs one sync job. CMS errors propagate so the queue retries;
// a single unmappable page is skipped with a warning rather than poisoning
// the whole batch.
func (s *CMSSync) Handle(ctx context.Context, job *CMSJob) error {
	if s.source == nil {
		return fmt.Errorf("cms source not configured")
	}

	switch job.Action {
	case CMSActionImportAll:
		if job.DatabaseID == "" {
			return fmt.Errorf("cms import_all requires database_id")
		}
		filter := publishedFilter
		if job.Force {
			filter = nil
		}
		pages, err := s.source.QueryDatabase(ctx, job.DatabaseID, filter, job.BatchSize)
		if err != nil {
			return err
		}
		synced := 0
		for _, page := range pages {
			if err := s.importPage(ctx, &page); err != nil {
				slog.Warn("[CMSSync] Skipping unmappable page", "page_id", page.ID, "error", err)
				continue
			}
			synced++
		}
		slog.Info("[CMSSync] Import complete", "database_id", job.DatabaseID, "pages", len(pages), "synced", synced)
		return nil

	case CMSActionImportPage:
		if job.PageID == "" {
			return fmt.Errorf("cms import_page requires page_id")
		}
		page, err := s.source.GetPage(ctx, job.PageID)
		if err != nil {
			return err
		}
		if !job.Force && !page.Checkbox("Published") {
			slog.Debug("[CMSSync] Page not published, skipping", "page_id", page.ID)
			return nil
		}
		return s.importPage(ctx, page)

	default:
		return fmt.Errorf("unknown cms sync action: %s", job.Action)
	}
}

// importPage maps one CMS page onto a post row. Slug and title properties
// are required.
func (s *CMSSync) importPage(ctx context.Context, page *notion.Page) error {
	slug := page.PlainText("Slug")
	title := page.PlainText("Title")
	if title == "" {
		title = page.PlainText("Name")
	}
	if slug == "" || title == "" {
		return fmt.Errorf("page %s missing slug or title", page.ID)
	}

	updatedAt := page.LastEditedTime
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.content.UpsertPost(ctx, storage.ContentItem{
		Slug:      slug,
		Title:     title,
		Tags:      page.MultiSelect("Tags"),
		UpdatedAt: updatedAt,
	})
	return err
}
