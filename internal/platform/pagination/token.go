package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize caps pageSize to keep queries bounded.
	MaxPageSize = 100
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// ErrInvalidPageSize is returned when pageSize is not a positive integer.
var ErrInvalidPageSize = errors.New("pagination: invalid page size")

// Cursor positions a listing ordered by creation time descending, with the
// document id as tie breaker.
type Cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// EncodeToken serialises the cursor into a URL-safe page token.
func EncodeToken(cursor Cursor) string {
	if cursor.IsZero() {
		return ""
	}
	data, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.ID == "" {
		return Cursor{}, ErrInvalidPageToken
	}
	return cursor, nil
}

// Params are the paging values read from a request query string.
type Params struct {
	PageSize  int
	PageToken string
}

// ParseRequest reads pageSize and pageToken. Oversized pages are clamped.
func ParseRequest(r *http.Request) (Params, error) {
	query := r.URL.Query()
	params := Params{PageSize: DefaultPageSize, PageToken: strings.TrimSpace(query.Get("pageToken"))}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, ErrInvalidPageSize
		}
		params.PageSize = size
	}
	if params.PageSize > MaxPageSize {
		params.PageSize = MaxPageSize
	}
	if _, err := DecodeToken(params.PageToken); err != nil {
		return Params{}, err
	}
	return params, nil
}
