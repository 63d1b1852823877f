package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// Gate issues the cheapest remote request that reveals a feed's current
// version. It never retries.
type Gate struct {
	fetcher Fetcher
	parser  *feed.Parser
	now     func() time.Time
}

func NewGate(fetcher Fetcher, parser *feed.Parser) *Gate {
	return &Gate{
		fetcher: fetcher,
		parser:  parser,
		now:     time.Now,
	}
}

// ProbePosts returns the version token and total entry count of a post feed.
func (g *Gate) ProbePosts(ctx context.Context, feedConfig *feed.Config) (feed.PostInfo, error) {
	root, err := fetch(ctx, g.fetcher, feedConfig, feed.PostProbeURL(feedConfig))
	if err != nil {
		return feed.PostInfo{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	info, err := g.parser.PostInfo(root)
	if err != nil {
		return feed.PostInfo{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	return info, nil
}

// ProbeEvents returns the version token of a calendar feed.
func (g *Gate) ProbeEvents(ctx context.Context, feedConfig *feed.Config) (string, error) {
	root, err := fetch(ctx, g.fetcher, feedConfig, feed.EventProbeURL(feedConfig, g.now()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	version, err := g.parser.EventVersion(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	return version, nil
}

func fetch(ctx context.Context, fetcher Fetcher, feedConfig *feed.Config, url string) (gjson.Result, error) {
	if timeout := feedConfig.GetTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fetcher.FetchJSON(ctx, url)
}
