package collector

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelRef(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ChannelRef
		wantErr error
	}{
		{name: "at username", raw: "@golang_news", want: ChannelRef{Username: "golang_news"}},
		{name: "bare username", raw: "golang_news", want: ChannelRef{Username: "golang_news"}},
		{name: "mixed case is folded", raw: "@GoLang", want: ChannelRef{Username: "golang"}},
		{name: "https link", raw: "https://t.me/durov", want: ChannelRef{Username: "durov"}},
		{name: "link without scheme", raw: "t.me/durov", want: ChannelRef{Username: "durov"}},
		{name: "preview link", raw: "https://t.me/s/durov", want: ChannelRef{Username: "durov"}},
		{name: "post link", raw: "https://t.me/durov/123", want: ChannelRef{Username: "durov"}},
		{name: "telegram.me", raw: "telegram.me/durov", want: ChannelRef{Username: "durov"}},
		{name: "numeric id", raw: "1234567890", want: ChannelRef{ID: 1234567890}},
		{name: "bot api id", raw: "-1001234567890", want: ChannelRef{ID: 1234567890}},
		{name: "whitespace", raw: "  @durov ", want: ChannelRef{Username: "durov"}},
		{name: "empty", raw: "  ", wantErr: ErrChannelRequired},
		{name: "too short", raw: "@ab", wantErr: ErrInvalidChannelRef},
		{name: "starts with digit", raw: "1abc_def", wantErr: ErrInvalidChannelRef},
		{name: "foreign host", raw: "https://example.com/durov", wantErr: ErrInvalidChannelRef},
		{name: "bad characters", raw: "dur-ov", wantErr: ErrInvalidChannelRef},
		{name: "zero id", raw: "0", wantErr: ErrInvalidChannelRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannelRef(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelRef_String(t *testing.T) {
	assert.Equal(t, "@durov", ChannelRef{Username: "durov"}.String())
	assert.Equal(t, "42", ChannelRef{ID: 42}.String())
}

func TestParsePageParams(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    PageParams
		wantErr error
	}{
		{name: "defaults", query: "", want: PageParams{Limit: 20}},
		{name: "explicit", query: "limit=5&offset=10", want: PageParams{Limit: 5, Offset: 10}},
		{name: "zero limit keeps default", query: "limit=0", want: PageParams{Limit: 20}},
		{name: "capped", query: "limit=100000", want: PageParams{Limit: maxReadLimit}},
		{name: "negative limit", query: "limit=-1", wantErr: ErrInvalidLimit},
		{name: "junk limit", query: "limit=abc", wantErr: ErrInvalidLimit},
		{name: "negative offset", query: "offset=-3", wantErr: ErrInvalidOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParsePageParams(q, 20)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSearchRequest(t *testing.T) {
	req, err := ParseSearchRequest(url.Values{"q": {" golang "}, "channel": {"@news"}, "limit": {"7"}})
	require.NoError(t, err)
	assert.Equal(t, SearchRequest{Query: "golang", Channel: "@news", Limit: 7}, req)

	_, err = ParseSearchRequest(url.Values{})
	assert.ErrorIs(t, err, ErrQueryRequired)

	_, err = ParseSearchRequest(url.Values{"q": {"x"}, "channel": {"a-b"}})
	assert.ErrorIs(t, err, ErrInvalidChannelRef)
}
