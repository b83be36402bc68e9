package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

var _ JobReporter = (*ResultCache)(nil)

// ResultCache keeps recent job results in memory in front of a JobReporter,
// so status polling for finished jobs does not hit the database.
type ResultCache struct {
	next  JobReporter
	cache *cache.Cache
}

// NewResultCache wraps next. Entries live for ttl.
func NewResultCache(next JobReporter, ttl time.Duration) *ResultCache {
	return &ResultCache{
		next:  next,
		cache: cache.New(ttl, ttl/2+time.Minute),
	}
}

// Report forwards to the wrapped reporter and caches the result on success.
func (c *ResultCache) Report(ctx context.Context, id string, result model.JobResult) error {
	if err := c.next.Report(ctx, id, result); err != nil {
		return err
	}
	c.cache.SetDefault(id, result)
	return nil
}

// ReportFailure forwards to the wrapped reporter and drops any cached result.
func (c *ResultCache) ReportFailure(ctx context.Context, id string, info model.ErrorInfo) error {
	c.cache.Delete(id)
	return c.next.ReportFailure(ctx, id, info)
}

// Result returns the cached result for a completed job.
func (c *ResultCache) Result(id string) (model.JobResult, bool) {
	v, ok := c.cache.Get(id)
	if !ok {
		return model.JobResult{}, false
	}
	return v.(model.JobResult), true
}

// Forget drops a job's cached result, e.g. once its output has expired.
func (c *ResultCache) Forget(id string) {
	c.cache.Delete(id)
}
