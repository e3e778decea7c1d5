package notion

import (
	"fmt"
	"strings"
)

// RichText is one span of Notion rich text. Outgoing spans carry Text;
// spans returned by the API also carry PlainText.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type TextContent struct {
	Content string `json:"content"`
}

func NewRichText(content string) RichText {
	return RichText{Type: "text", Text: &TextContent{Content: content}}
}

// PlainText returns the text of the first span, preferring the
// API-populated plain_text over the raw text content.
func PlainText(spans []RichText) string {
	if len(spans) == 0 {
		return ""
	}
	if spans[0].PlainText != "" {
		return spans[0].PlainText
	}
	if spans[0].Text != nil {
		return spans[0].Text.Content
	}
	return ""
}

type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type ExternalFile struct {
	URL string `json:"url"`
}

type FileReference struct {
	Name     string        `json:"name,omitempty"`
	Type     string        `json:"type,omitempty"`
	External *ExternalFile `json:"external,omitempty"`
}

// PropertyValue is the closed set of property payload shapes this client
// reads and writes. Exactly one of the fields is populated per value.
type PropertyValue struct {
	Title    []RichText      `json:"title,omitempty"`
	RichText []RichText      `json:"rich_text,omitempty"`
	Date     *DateValue      `json:"date,omitempty"`
	Files    []FileReference `json:"files,omitempty"`
}

type Page struct {
	ID         string                   `json:"id"`
	Properties map[string]PropertyValue `json:"properties"`
}

type Parent struct {
	DatabaseID string `json:"database_id"`
}

type CreatePageRequest struct {
	Parent     Parent                   `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

type UpdatePageRequest struct {
	Properties map[string]PropertyValue `json:"properties"`
}

type DateCondition struct {
	OnOrAfter  string `json:"on_or_after,omitempty"`
	OnOrBefore string `json:"on_or_before,omitempty"`
}

type PropertyFilter struct {
	Property string         `json:"property"`
	Date     *DateCondition `json:"date,omitempty"`
}

type QueryFilter struct {
	And []PropertyFilter `json:"and,omitempty"`
}

type QueryRequest struct {
	Filter      *QueryFilter `json:"filter,omitempty"`
	PageSize    int          `json:"page_size,omitempty"`
	StartCursor string       `json:"start_cursor,omitempty"`
}

type QueryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type ImageBlock struct {
	Type     string        `json:"type,omitempty"`
	External *ExternalFile `json:"external,omitempty"`
	Caption  []RichText    `json:"caption,omitempty"`
}

type Block struct {
	Object string      `json:"object,omitempty"`
	ID     string      `json:"id,omitempty"`
	Type   string      `json:"type"`
	Image  *ImageBlock `json:"image,omitempty"`
}

func NewExternalImageBlock(url, caption string) Block {
	return Block{
		Object: "block",
		Type:   "image",
		Image: &ImageBlock{
			Type:     "external",
			External: &ExternalFile{URL: url},
			Caption:  []RichText{NewRichText(caption)},
		},
	}
}

type BlockChildrenResponse struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type AppendChildrenRequest struct {
	Children []Block `json:"children"`
}

// PropertyMap resolves semantic fields to the property names of the
// operator's database schema. Title, Date and ExternalID are required;
// the rest may be left empty to skip that field entirely.
type PropertyMap struct {
	Title      string
	Date       string
	Memo       string
	ExternalID string
	URL1       string
	URL2       string
}

func (m PropertyMap) Validate() error {
	var missing []string
	if strings.TrimSpace(m.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(m.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		missing = append(missing, "external_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("property map is missing required mappings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PageFields is the closed set of semantic fields carried by one upsert.
// Empty Memo still writes an empty rich-text value; empty URLs omit the
// file properties.
type PageFields struct {
	Title      string
	Start      string
	Memo       string
	ExternalID string
	URL1       string
	URL2       string
}

// BuildProperties translates semantic fields into the store's property
// payload under the configured property names.
func (m PropertyMap) BuildProperties(f PageFields) map[string]PropertyValue {
	props := map[string]PropertyValue{
		m.Title: {Title: []RichText{NewRichText(f.Title)}},
		m.Date:  {Date: &DateValue{Start: f.Start}},
	}
	if m.Memo != "" {
		props[m.Memo] = PropertyValue{RichText: []RichText{NewRichText(f.Memo)}}
	}
	props[m.ExternalID] = PropertyValue{RichText: []RichText{NewRichText(f.ExternalID)}}
	if m.URL1 != "" && f.URL1 != "" {
		props[m.URL1] = PropertyValue{Files: []FileReference{externalImageFile(f.URL1)}}
	}
	if m.URL2 != "" && f.URL2 != "" {
		props[m.URL2] = PropertyValue{Files: []FileReference{externalImageFile(f.URL2)}}
	}
	return props
}

func externalImageFile(url string) FileReference {
	return FileReference{
		Name:     "image.jpg",
		Type:     "external",
		External: &ExternalFile{URL: url},
	}
}
