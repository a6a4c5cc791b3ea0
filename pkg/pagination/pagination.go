package pagination

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Paging keys. They are stripped from filters so links never repeat them.
var pagingKeys = []string{"_count", "_offset", "limit", "offset"}

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// Values returns the request parameters that carry search and paging input:
// the query string, plus the form body of a POST search.
func Values(c echo.Context) url.Values {
	out := url.Values{}
	for k, v := range c.QueryParams() {
		out[k] = append(out[k], v...)
	}
	if c.Request().Method == http.MethodPost {
		if form, err := c.FormParams(); err == nil {
			for k, v := range form {
				out[k] = append(out[k], v...)
			}
		}
	}
	return out
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return FromValues(Values(c))
}

// FromValues reads _count/_offset, falling back to limit/offset. The limit is
// clamped to MaxLimit and negative offsets become 0.
func FromValues(v url.Values) Params {
	limit, _ := strconv.Atoi(v.Get("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(v.Get("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(v.Get("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(v.Get("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Filters returns a copy of v without the paging keys.
func Filters(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	for _, k := range pagingKeys {
		out.Del(k)
	}
	return out
}

// Response wraps a paginated admin API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below 0.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is one self/next/previous page link.
type Link struct {
	Relation string
	URL      string
}

// Links builds self, next and previous links for basePath. filters are
// encoded in key order ahead of _count and _offset.
func (p Params) Links(basePath string, filters url.Values, total int) []Link {
	prefix := basePath + "?"
	if encoded := Filters(filters).Encode(); encoded != "" {
		prefix += encoded + "&"
	}
	link := func(offset int) string {
		return prefix + "_count=" + strconv.Itoa(p.Limit) + "&_offset=" + strconv.Itoa(offset)
	}

	links := []Link{{Relation: "self", URL: link(p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: link(p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: link(p.PreviousOffset())})
	}
	return links
}
