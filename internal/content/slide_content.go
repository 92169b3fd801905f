package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ContentType is the discriminator of a SlideContent on the wire.
type ContentType string

const (
	ContentTitle ContentType = "title"
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// SlideContent is one part of a slide. The concrete types are TitleContent,
// TextContent and ImageContent.
type SlideContent interface {
	ContentType() ContentType
	isSlideContent()
}

// TitleContent is a title/subtitle pair.
type TitleContent struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// TextContent is a lyric or free text block.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent references an image by URL.
type ImageContent struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

func (TitleContent) ContentType() ContentType { return ContentTitle }
func (TextContent) ContentType() ContentType  { return ContentText }
func (ImageContent) ContentType() ContentType { return ContentImage }

func (TitleContent) isSlideContent() {}
func (TextContent) isSlideContent()  {}
func (ImageContent) isSlideContent() {}

func (c TitleContent) MarshalJSON() ([]byte, error) {
	type alias TitleContent
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		alias
	}{ContentTitle, alias(c)})
}

func (c TextContent) MarshalJSON() ([]byte, error) {
	type alias TextContent
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		alias
	}{ContentText, alias(c)})
}

func (c ImageContent) MarshalJSON() ([]byte, error) {
	type alias ImageContent
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		alias
	}{ContentImage, alias(c)})
}

var ErrUnknownContent = errors.New("unknown slide content type")

// DecodeContent decodes one tagged slide content.
func DecodeContent(b []byte) (SlideContent, error) {
	var head struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case ContentTitle:
		var c TitleContent
		err := json.Unmarshal(b, &c)
		return c, err
	case ContentText:
		var c TextContent
		err := json.Unmarshal(b, &c)
		return c, err
	case ContentImage:
		var c ImageContent
		err := json.Unmarshal(b, &c)
		return c, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownContent, head.Type)
}
