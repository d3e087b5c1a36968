package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// Request is a complete list request: filters, ordering and an optional page.
type Request struct {
	Criteria
	Sort      SortKey
	Ascending bool
	Offset    int
	Limit     int // 0 = everything
}

// DefaultRequest lists everything, newest first.
func DefaultRequest() Request {
	return Request{Sort: SortAddedAt}
}

// Parse builds a Request from URL query parameters:
//
//	fictionType, genre, status   exact (case-insensitive) match
//	format                       repeatable or comma separated; all must be owned
//	search (or q)                substring over title, author, genre, notes, fictionType
//	sort, order=asc|desc         default addedAt, desc
//	offset, limit
func Parse(v url.Values) (Request, error) {
	req := DefaultRequest()
	req.FictionType = v.Get("fictionType")
	req.Genre = v.Get("genre")
	req.Status = v.Get("status")
	req.Search = v.Get("search")
	if req.Search == "" {
		req.Search = v.Get("q")
	}

	for _, raw := range v["format"] {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Formats = append(req.Formats, catalog.Format(f))
			}
		}
	}
	req.Formats = catalog.UniqueFormats(req.Formats)

	if s := v.Get("sort"); s != "" {
		key, err := ParseSortKey(s)
		if err != nil {
			return Request{}, err
		}
		req.Sort = key
		req.Ascending = true
	}
	switch strings.ToLower(v.Get("order")) {
	case "":
	case "asc":
		req.Ascending = true
	case "desc":
		req.Ascending = false
	default:
		return Request{}, fmt.Errorf("invalid order %q", v.Get("order"))
	}

	req.Offset, _ = strconv.Atoi(v.Get("offset"))
	req.Limit, _ = strconv.Atoi(v.Get("limit"))
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.Limit < 0 {
		req.Limit = 0
	}
	return req, nil
}

// Apply filters, sorts and pages books. total is the number of matches before paging.
func (r Request) Apply(books []catalog.Book) (page []catalog.Book, total int, err error) {
	matched := Filter(books, r.Criteria)
	if r.Sort != "" {
		if matched, err = Sort(matched, r.Sort, r.Ascending); err != nil {
			return nil, 0, err
		}
	}
	return Page(matched, r.Offset, r.Limit), len(matched), nil
}
