package rest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// newPageResponse 組出含 first / last / next / previous 連結的分頁回應
func newPageResponse[T, R any](c *gin.Context, p *domain.Paginated[T], results []R) dto.PageResponse[R] {
	resp := dto.PageResponse[R]{
		Count:    p.Count,
		Page:     p.Page,
		NumPages: p.NumPages,
		Results:  results,
	}
	if p.HasNext() {
		resp.Next = pageURL(c, p.Page+1)
		resp.Last = pageURL(c, p.NumPages)
	}
	if p.HasPrevious() {
		resp.Previous = pageURL(c, p.Page-1)
		resp.First = pageURL(c, 1)
	}
	return resp
}

// pageURL 目前請求的絕對網址，只替換 page 參數
func pageURL(c *gin.Context, page int) *string {
	u := url.URL{
		Scheme: "http",
		Host:   c.Request.Host,
		Path:   c.Request.URL.Path,
	}
	if c.Request.TLS != nil {
		u.Scheme = "https"
	}
	switch proto := strings.ToLower(c.GetHeader("X-Forwarded-Proto")); proto {
	case "http", "https":
		u.Scheme = proto
	}
	q := c.Request.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}
