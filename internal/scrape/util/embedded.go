package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoEmbeddedState means the page carried no hydration payload at the marker.
var ErrNoEmbeddedState = errors.New("embedded state not found")

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// ScriptJSON returns the text of the first script matched by selector.
func ScriptJSON(page []byte, selector string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(doc.Find(selector).First().Text())
	if raw == "" {
		return nil, ErrNoEmbeddedState
	}
	return []byte(raw), nil
}

// AttrJSON returns the value of attr on the first element matched by selector.
// goquery has already entity-decoded the attribute.
func AttrJSON(page []byte, selector, attr string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	v, ok := doc.Find(selector).First().Attr(attr)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, ErrNoEmbeddedState
	}
	return []byte(v), nil
}
