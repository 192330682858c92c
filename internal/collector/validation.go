package collector

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// validation errors
var (
	ErrChannelRequired   = errors.New("channel is required")
	ErrInvalidChannelRef = errors.New("channel must be @username, a t.me link or a numeric id")
	ErrInvalidLimit      = errors.New("limit must be non-negative")
	ErrInvalidOffset     = errors.New("offset must be non-negative")
	ErrQueryRequired     = errors.New("q is required")
)

// bot api style ids carry this prefix in front of the channel id
const botAPIChannelPrefix = "-100"

// max limit accepted by read endpoints
const maxReadLimit = 500

var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,31}$`)

// ChannelRef identifies a channel either by username or by numeric id.
type ChannelRef struct {
	ID       int64
	Username string
}

// String returns @username or the id.
func (r ChannelRef) String() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

// ParseChannelRef accepts "@name", "name", "https://t.me/name" (including /s/ and post links),
// a channel id, or a bot api id such as -1001234567890.
func ParseChannelRef(raw string) (ChannelRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChannelRef{}, ErrChannelRequired
	}

	if id, ok := parseChannelID(s); ok {
		return ChannelRef{ID: id}, nil
	}

	s = strings.TrimPrefix(s, "@")
	if name, ok := usernameFromLink(s); ok {
		s = name
	}
	if !usernameRe.MatchString(s) {
		return ChannelRef{}, ErrInvalidChannelRef
	}
	return ChannelRef{Username: strings.ToLower(s)}, nil
}

func parseChannelID(s string) (int64, bool) {
	digits := strings.TrimPrefix(s, botAPIChannelPrefix)
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func usernameFromLink(s string) (string, bool) {
	if !strings.Contains(s, "/") {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimPrefix(u.Host, "www.")) {
	case "t.me", "telegram.me", "telegram.dog":
	default:
		return "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 1 && parts[0] == "s" {
		parts = parts[1:]
	}
	if len(parts) == 0 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

// PageParams are the paging parameters of list endpoints.
type PageParams struct {
	Limit  int
	Offset int
}

// ParsePageParams reads limit and offset, applying defaultLimit and the read cap.
func ParsePageParams(q url.Values, defaultLimit int) (PageParams, error) {
	p := PageParams{Limit: defaultLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, ErrInvalidLimit
		}
		if n > 0 {
			p.Limit = min(n, maxReadLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, ErrInvalidOffset
		}
		p.Offset = n
	}
	return p, nil
}

// SearchRequest is a parsed search query.
type SearchRequest struct {
	Query   string
	Channel string
	Limit   int
}

// ParseSearchRequest reads q, channel and limit.
func ParseSearchRequest(q url.Values) (SearchRequest, error) {
	req := SearchRequest{
		Query:   strings.TrimSpace(q.Get("q")),
		Channel: strings.TrimSpace(q.Get("channel")),
	}
	if req.Query == "" {
		return req, ErrQueryRequired
	}
	if req.Channel != "" {
		if _, err := ParseChannelRef(req.Channel); err != nil {
			return req, err
		}
	}

	p, err := ParsePageParams(q, 0)
	if err != nil {
		return req, err
	}
	req.Limit = p.Limit
	return req, nil
}
