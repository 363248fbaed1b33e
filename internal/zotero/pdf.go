package zotero

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	zerrors "zotra/internal/errors"
)

// resolveStorageKey finds the attachment key holding the item's PDF:
// the primary attachment link when it declares a PDF, otherwise the
// first PDF child. Empty when the item has no PDF.
func (c *Client) resolveStorageKey(ctx context.Context, item *apiItem) (string, error) {
	att := item.Links.Attachment
	if att.Href != "" && strings.Contains(att.AttachmentType, "pdf") {
		if key := lastPathSegment(att.Href); key != "" {
			return key, nil
		}
	}

	var children []apiItem
	if _, err := c.getJSON(ctx, "/items/"+url.PathEscape(item.Key)+"/children", url.Values{"format": {"json"}}, &children); err != nil {
		return "", err
	}
	for _, child := range children {
		if strings.Contains(child.Data.ContentType, "pdf") {
			return child.Key, nil
		}
	}
	return "", nil
}

// resolvePDFPath returns the first PDF under
// <root>/storage/<storageKey>/, alphabetically.
func resolvePDFPath(root, storageKey string) (string, error) {
	if root == "" {
		return "", zerrors.New(zerrors.ErrCodeConfigInvalid,
			"library root is not configured", nil)
	}
	dir := filepath.Join(root, "storage", storageKey)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", zerrors.New(zerrors.ErrCodePDFMissing,
			"attachment directory not readable: "+dir, err)
	}

	var pdfs []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			pdfs = append(pdfs, e.Name())
		}
	}
	if len(pdfs) == 0 {
		return "", zerrors.New(zerrors.ErrCodePDFMissing,
			"no pdf in attachment directory "+dir, nil)
	}
	sort.Strings(pdfs)
	return filepath.Join(dir, pdfs[0]), nil
}

// lastPathSegment returns the final segment of a URL path.
func lastPathSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
