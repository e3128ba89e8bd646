package scan

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/you/bulkops/internal/marketplace"
)

// Pager is the slice of the marketplace client the scanner needs.
type Pager interface {
	FetchPage(ctx context.Context, selector, status, cursor string, limit int) (marketplace.Page, error)
	FetchPageOffset(ctx context.Context, selector, status string, offset, limit int) (marketplace.Page, error)
}

// PageFunc receives each de-duplicated page in scan order. Returning an
// error stops the scan; the error is passed through unchanged so callers
// can use sentinels for cooperative cancellation.
type PageFunc func(ctx context.Context, page marketplace.Page) error

// Scanner walks every page of a selector's collection. Cursor paging is
// the primary strategy; when the upstream rejects it for a selector the
// scanner falls back to offset paging capped at a safety ceiling.
type Scanner struct {
	pager         Pager
	pageSize      int
	offsetCeiling int
	log           *zap.Logger
}

func New(pager Pager, pageSize, offsetCeiling int, log *zap.Logger) *Scanner {
	if pageSize <= 0 {
		pageSize = 100
	}
	if offsetCeiling <= 0 {
		offsetCeiling = 10000
	}
	return &Scanner{pager: pager, pageSize: pageSize, offsetCeiling: offsetCeiling, log: log}
}

// Scan runs one sub-scan per requested status (a single unfiltered scan
// when none are given) and de-duplicates items by id across sub-scans,
// preserving first-seen order.
func (s *Scanner) Scan(ctx context.Context, selector string, statuses []string, fn PageFunc) error {
	if len(statuses) == 0 {
		statuses = []string{""}
	}
	seen := make(map[string]struct{})
	for _, status := range statuses {
		if err := s.scanStatus(ctx, selector, status, seen, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanStatus(ctx context.Context, selector, status string, seen map[string]struct{}, fn PageFunc) error {
	cursor := ""
	for {
		page, err := s.pager.FetchPage(ctx, selector, status, cursor, s.pageSize)
		if errors.Is(err, marketplace.ErrCursorUnsupported) {
			s.log.Debug("cursor scan unavailable, falling back to offset paging",
				zap.String("selector", selector), zap.String("status", status))
			return s.scanOffset(ctx, selector, status, seen, fn)
		}
		if err != nil {
			return err
		}
		if err := s.deliver(ctx, page, seen, fn); err != nil {
			return err
		}
		if page.NextCursor == "" || len(page.Items) == 0 {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (s *Scanner) scanOffset(ctx context.Context, selector, status string, seen map[string]struct{}, fn PageFunc) error {
	offset := 0
	for {
		if offset >= s.offsetCeiling {
			s.log.Warn("offset scan hit safety ceiling",
				zap.String("selector", selector), zap.Int("offset", offset))
			return nil
		}
		page, err := s.pager.FetchPageOffset(ctx, selector, status, offset, s.pageSize)
		if err != nil {
			return err
		}
		if len(page.Items) == 0 {
			return nil
		}
		if err := s.deliver(ctx, page, seen, fn); err != nil {
			return err
		}
		offset += len(page.Items)
		if page.Total != nil && int64(offset) >= *page.Total {
			return nil
		}
	}
}

// deliver drops already-seen items and hands the rest to the callback.
// A page left empty by de-duplication is skipped, not an error.
func (s *Scanner) deliver(ctx context.Context, page marketplace.Page, seen map[string]struct{}, fn PageFunc) error {
	fresh := page.Items[:0:0]
	for _, it := range page.Items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}
	page.Items = fresh
	if len(fresh) == 0 && page.Total == nil {
		return nil
	}
	return fn(ctx, page)
}
