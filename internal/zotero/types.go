// Package zotero reads bibliographic items from the Zotero Web API v3
// and resolves their PDF attachments in the local Zotero storage
// directory.
package zotero

import (
	"fmt"
	"strings"
)

// BibItem is a read-only projection of a Zotero library item.
type BibItem struct {
	// ItemID is the Zotero item key, the primary identity.
	ItemID string `json:"item_id"`
	// StorageKey is the attachment key used to locate the PDF on disk.
	// Empty when the item has no PDF.
	StorageKey  string `json:"storage_key,omitempty"`
	CitationKey string `json:"citation_key"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Date        string `json:"date"`
	Abstract    string `json:"abstract,omitempty"`
	DOI         string `json:"doi,omitempty"`
	URL         string `json:"url,omitempty"`
	Publication string `json:"publication,omitempty"`
	ItemType    string `json:"item_type"`
	Tags        []string `json:"tags,omitempty"`
	// Collections is the collection path the item belongs to.
	Collections []string `json:"collections,omitempty"`
	// PDFPath is the absolute path of the PDF, empty when unresolved.
	PDFPath string `json:"pdf_path,omitempty"`
}

// HasPDF reports whether the item resolved to a PDF on disk.
func (b *BibItem) HasPDF() bool {
	return b.PDFPath != ""
}

// SelectorKind enumerates the supported item selectors.
type SelectorKind string

const (
	SelectAll              SelectorKind = "all"
	SelectByName           SelectorKind = "by_name"
	SelectByID             SelectorKind = "by_id"
	SelectByCollectionID   SelectorKind = "by_collection_id"
	SelectByCollectionName SelectorKind = "by_collection_name"
)

// Selector picks a subset of the library.
type Selector struct {
	Kind SelectorKind
	// Value is the query string, item key, or collection key/name.
	Value string
}

// All selects every top-level item.
func All() Selector { return Selector{Kind: SelectAll} }

// ByName selects items matching a quick-search query.
func ByName(q string) Selector { return Selector{Kind: SelectByName, Value: q} }

// ByID selects a single item by key.
func ByID(id string) Selector { return Selector{Kind: SelectByID, Value: id} }

// ByCollectionID selects the items of a collection by key.
func ByCollectionID(id string) Selector { return Selector{Kind: SelectByCollectionID, Value: id} }

// ByCollectionName selects the items of a collection by display name.
func ByCollectionName(name string) Selector {
	return Selector{Kind: SelectByCollectionName, Value: name}
}

// String renders the selector for logs and error messages.
func (s Selector) String() string {
	if s.Kind == SelectAll {
		return "all"
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Value)
}

// Validate rejects selectors that need a value but have none.
func (s Selector) Validate() error {
	switch s.Kind {
	case SelectAll:
		return nil
	case SelectByName, SelectByID, SelectByCollectionID, SelectByCollectionName:
		if strings.TrimSpace(s.Value) == "" {
			return fmt.Errorf("selector %s requires a value", s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown selector kind %q", s.Kind)
	}
}

// apiItem is the wire shape of a Zotero item.
type apiItem struct {
	Key   string `json:"key"`
	Links struct {
		Attachment struct {
			Href           string `json:"href"`
			AttachmentType string `json:"attachmentType"`
		} `json:"attachment"`
	} `json:"links"`
	Meta struct {
		CreatorSummary string `json:"creatorSummary"`
		ParsedDate     string `json:"parsedDate"`
	} `json:"meta"`
	Data apiItemData `json:"data"`
}

type apiItemData struct {
	Key         string    `json:"key"`
	ItemType    string    `json:"itemType"`
	Title       string    `json:"title"`
	Creators    []creator `json:"creators"`
	Abstract    string    `json:"abstractNote"`
	Date        string    `json:"date"`
	DOI         string    `json:"DOI"`
	URL         string    `json:"url"`
	Publication string    `json:"publicationTitle"`
	Extra       string    `json:"extra"`
	ParentItem  string    `json:"parentItem"`
	ContentType string    `json:"contentType"`
	CitationKey string    `json:"citationKey"`
	Filename    string    `json:"filename"`
	Tags        []struct {
		Tag string `json:"tag"`
	} `json:"tags"`
	Collections []string `json:"collections"`
}

type creator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
}

// apiCollection is the wire shape of a Zotero collection.
type apiCollection struct {
	Key  string `json:"key"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

// joinAuthors renders creators as "Last, First and Last, First".
func joinAuthors(creators []creator) string {
	var parts []string
	for _, c := range creators {
		if c.CreatorType != "" && c.CreatorType != "author" {
			continue
		}
		switch {
		case c.Name != "":
			parts = append(parts, c.Name)
		case c.LastName != "" && c.FirstName != "":
			parts = append(parts, c.LastName+", "+c.FirstName)
		case c.LastName != "":
			parts = append(parts, c.LastName)
		}
	}
	return strings.Join(parts, " and ")
}
