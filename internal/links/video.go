package links

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	videoKind     = "youtube#video"
	watchURL      = "https://www.youtube.com/watch?v="
	maxPageResult = 50
)

// VideoSearcher looks up videos with the YouTube Data API.
type VideoSearcher struct {
	service *youtube.Service
}

// NewVideoSearcher builds the YouTube client. endpoint overrides the API base
// URL and may be empty.
func NewVideoSearcher(ctx context.Context, apiKey, endpoint string) (*VideoSearcher, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}
	return &VideoSearcher{service: service}, nil
}

// Search returns watch URLs. Channels and playlists are dropped before the
// result is cut to limit, so the request asks for more than limit.
func (v *VideoSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	resp, err := v.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		MaxResults(int64(min(limit*2, maxPageResult))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	var links []string
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.Kind != videoKind || item.Id.VideoId == "" {
			continue
		}
		links = append(links, watchURL+item.Id.VideoId)
		if len(links) == limit {
			break
		}
	}
	return links, nil
}
