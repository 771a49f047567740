package links

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pdf-analyzer/internal/apperrors"
	"pdf-analyzer/internal/models"
)

// Searcher is an external search provider returning URLs for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Augmenter fetches web and video links for a question. Provider failures
// never escape it; they are reported inside the returned LinkResult.
type Augmenter struct {
	web        Searcher
	video      Searcher
	webLimit   int
	videoLimit int
	timeout    time.Duration
}

// NewAugmenter accepts nil searchers; a missing provider yields no links.
func NewAugmenter(web, video Searcher, webLimit, videoLimit int, timeout time.Duration) *Augmenter {
	return &Augmenter{
		web:        web,
		video:      video,
		webLimit:   webLimit,
		videoLimit: videoLimit,
		timeout:    timeout,
	}
}

func (a *Augmenter) WebLinks(ctx context.Context, question string) models.LinkResult {
	return a.lookup(ctx, "web", a.web, question, a.webLimit)
}

func (a *Augmenter) VideoLinks(ctx context.Context, question string) models.LinkResult {
	return a.lookup(ctx, "video", a.video, question, a.videoLimit)
}

// Lookup runs both searches concurrently and waits for both.
func (a *Augmenter) Lookup(ctx context.Context, question string) models.LinkSet {
	var (
		set models.LinkSet
		g   errgroup.Group
	)
	g.Go(func() error {
		set.Web = a.WebLinks(ctx, question)
		return nil
	})
	g.Go(func() error {
		set.Video = a.VideoLinks(ctx, question)
		return nil
	})
	_ = g.Wait()
	return set
}

func (a *Augmenter) lookup(ctx context.Context, kind string, s Searcher, question string, limit int) models.LinkResult {
	if s == nil || limit <= 0 {
		return models.LinkResult{}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	urls, err := s.Search(ctx, question, limit)
	if err != nil {
		log.Warn().Err(err).Str("provider", kind).Msg("Link lookup failed")
		return models.LinkResult{Err: apperrors.Wrap(apperrors.CodeLinkLookup, kind+" search failed", err)}
	}
	if len(urls) > limit {
		urls = urls[:limit]
	}
	return models.LinkResult{URLs: urls}
}
