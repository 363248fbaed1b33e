package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zotra/internal/config"
	zerrors "zotra/internal/errors"
)

const (
	// DefaultBaseURL is the Zotero Web API endpoint.
	DefaultBaseURL = "https://api.zotero.org"

	// pageSize is the API maximum per request.
	pageSize = 100

	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

// Client reads a single user library through the Zotero Web API v3.
type Client struct {
	http    *http.Client
	baseURL string
	userID  string
	apiKey  string
	root    string
	logger  *slog.Logger
}

// NewClient creates a library client from configuration. UserID and
// APIKey must already be populated from the environment.
func NewClient(cfg config.LibraryConfig, logger *slog.Logger) (*Client, error) {
	if cfg.UserID == "" || cfg.APIKey == "" {
		return nil, zerrors.New(zerrors.ErrCodeMissingSecret,
			"Zotero credentials are not configured", nil).
			WithSuggestion("set ZOTERO_ID and ZOTERO_API_KEY in the environment or ~/.zotra/.env")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  cfg.UserID,
		apiKey:  cfg.APIKey,
		root:    cfg.Root,
		logger:  logger.With(slog.String("component", "zotero")),
	}, nil
}

// get performs an authenticated GET, retrying 5xx and transport
// failures with backoff. 4xx responses fail immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	u := c.baseURL + "/users/" + c.userID + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	var header http.Header
	delay := time.Second

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Zotero-API-Version", "3")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err == nil {
			body, err = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err == nil {
				switch {
				case resp.StatusCode == http.StatusOK:
					return body, resp.Header, nil
				case resp.StatusCode >= 500:
					err = zerrors.New(zerrors.ErrCodeLibraryAPI,
						fmt.Sprintf("zotero api returned status %d", resp.StatusCode), nil)
				default:
					return nil, nil, zerrors.New(zerrors.ErrCodeLibraryAPI,
						fmt.Sprintf("zotero api returned status %d: %s", resp.StatusCode, truncate(string(body), 200)), nil).
						WithDetail("url", u)
				}
			}
			header = resp.Header
		}

		if attempt >= maxAttempts || ctx.Err() != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, header, zerrors.New(zerrors.ErrCodeNetworkUnavailable,
				fmt.Sprintf("zotero request failed after %d attempts", attempt), err)
		}

		c.logger.Warn("zotero request failed, retrying",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// getJSON performs a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	body, header, err := c.get(ctx, path, query)
	if err != nil {
		return header, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return header, fmt.Errorf("failed to decode zotero response: %w", err)
	}
	return header, nil
}

// CountItems returns the number of top-level items in the library.
func (c *Client) CountItems(ctx context.Context) (int, error) {
	q := url.Values{"limit": {"1"}, "format": {"json"}}
	_, header, err := c.get(ctx, "/items/top", q)
	if err != nil {
		return 0, err
	}
	total, err := strconv.Atoi(header.Get("Total-Results"))
	if err != nil {
		return 0, fmt.Errorf("invalid Total-Results header: %w", err)
	}
	return total, nil
}

// ListCollections returns collection name to key for the library.
func (c *Client) ListCollections(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for start := 0; ; start += pageSize {
		var page []apiCollection
		q := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"start":  {strconv.Itoa(start)},
			"format": {"json"},
		}
		if _, err := c.getJSON(ctx, "/collections", q, &page); err != nil {
			return nil, err
		}
		for _, col := range page {
			out[col.Data.Name] = col.Key
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// GetItem fetches a single item by key. Child items resolve to nil.
func (c *Client) GetItem(ctx context.Context, itemID string) (*BibItem, error) {
	var item apiItem
	if _, err := c.getJSON(ctx, "/items/"+url.PathEscape(itemID), url.Values{"format": {"json"}}, &item); err != nil {
		return nil, err
	}
	if item.Data.ParentItem != "" {
		return nil, nil
	}
	return c.toBibItem(ctx, &item), nil
}

// Items fetches the items matched by the selector. A single item
// failing to resolve its PDF does not abort the batch.
func (c *Client) Items(ctx context.Context, sel Selector) ([]BibItem, error) {
	if err := sel.Validate(); err != nil {
		return nil, zerrors.New(zerrors.ErrCodeInvalidSelector, err.Error(), nil)
	}

	var (
		path  string
		query = url.Values{"format": {"json"}}
	)
	switch sel.Kind {
	case SelectAll:
		path = "/items/top"
	case SelectByName:
		path = "/items/top"
		query.Set("q", sel.Value)
	case SelectByID:
		item, err := c.GetItem(ctx, sel.Value)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return []BibItem{}, nil
		}
		return []BibItem{*item}, nil
	case SelectByCollectionID:
		path = "/collections/" + url.PathEscape(sel.Value) + "/items/top"
	case SelectByCollectionName:
		collections, err := c.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := collections[sel.Value]
		if !ok {
			return nil, zerrors.New(zerrors.ErrCodeInvalidSelector,
				fmt.Sprintf("collection %q not found", sel.Value), nil)
		}
		path = "/collections/" + url.PathEscape(key) + "/items/top"
	}

	var items []BibItem
	for start := 0; ; start += pageSize {
		var page []apiItem
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("start", strconv.Itoa(start))
		if _, err := c.getJSON(ctx, path, query, &page); err != nil {
			return nil, err
		}
		for i := range page {
			if page[i].Data.ParentItem != "" {
				continue
			}
			items = append(items, *c.toBibItem(ctx, &page[i]))
		}
		if len(page) < pageSize {
			break
		}
	}
	if items == nil {
		items = []BibItem{}
	}
	return items, nil
}

// ItemIDForStorageKey maps an attachment key back to its parent item
// id. An attachment without a parent maps to itself.
func (c *Client) ItemIDForStorageKey(ctx context.Context, storageKey string) (string, error) {
	var item apiItem
	if _, err := c.getJSON(ctx, "/items/"+url.PathEscape(storageKey), url.Values{"format": {"json"}}, &item); err != nil {
		return "", err
	}
	if item.Data.ParentItem != "" {
		return item.Data.ParentItem, nil
	}
	return item.Key, nil
}

// FullText fetches the indexed full text Zotero holds for an
// attachment, if any.
func (c *Client) FullText(ctx context.Context, storageKey string) (string, error) {
	var result struct {
		Content string `json:"content"`
	}
	if _, err := c.getJSON(ctx, "/items/"+url.PathEscape(storageKey)+"/fulltext", url.Values{"format": {"json"}}, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

// toBibItem maps an API item to a BibItem and resolves its PDF.
// PDF resolution failures are logged, never fatal.
func (c *Client) toBibItem(ctx context.Context, item *apiItem) *BibItem {
	bib := &BibItem{
		ItemID:      item.Key,
		CitationKey: citationKey(item),
		Title:       item.Data.Title,
		Authors:     joinAuthors(item.Data.Creators),
		Date:        item.Data.Date,
		Abstract:    item.Data.Abstract,
		DOI:         item.Data.DOI,
		URL:         item.Data.URL,
		Publication: item.Data.Publication,
		ItemType:    item.Data.ItemType,
		Collections: item.Data.Collections,
	}
	if bib.Authors == "" {
		bib.Authors = item.Meta.CreatorSummary
	}
	for _, t := range item.Data.Tags {
		bib.Tags = append(bib.Tags, t.Tag)
	}

	storageKey, err := c.resolveStorageKey(ctx, item)
	if err != nil {
		c.logger.Warn("pdf resolution failed",
			slog.String("item_id", item.Key),
			slog.String("error", err.Error()))
		return bib
	}
	if storageKey == "" {
		return bib
	}
	bib.StorageKey = storageKey

	if path, err := resolvePDFPath(c.root, storageKey); err == nil {
		bib.PDFPath = path
	} else {
		c.logger.Debug("pdf not found on disk",
			slog.String("item_id", item.Key),
			slog.String("storage_key", storageKey))
	}
	return bib
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
