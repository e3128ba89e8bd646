package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// FetchPage requests one cursor page of a collection. An empty cursor
// starts the scan from the beginning.
func (c *Client) FetchPage(ctx context.Context, selector, status, cursor string, limit int) (Page, error) {
	var page Page
	err := c.withRetry(ctx, "fetch_page", func() error {
		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		q.Set("limit", strconv.Itoa(limit))
		resp, err := c.do(ctx, http.MethodGet, "/v1/collections/"+selector+"/items", q, nil)
		if err != nil {
			return err
		}
		return decode(resp, &page)
	})
	return page, err
}

// FetchPageOffset requests one offset page; the fallback for selectors
// where the upstream rejects cursor scans.
func (c *Client) FetchPageOffset(ctx context.Context, selector, status string, offset, limit int) (Page, error) {
	var page Page
	err := c.withRetry(ctx, "fetch_page_offset", func() error {
		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))
		resp, err := c.do(ctx, http.MethodGet, "/v1/collections/"+selector+"/items", q, nil)
		if err != nil {
			return err
		}
		return decode(resp, &page)
	})
	return page, err
}

func (c *Client) FetchItem(ctx context.Context, id string) (Item, error) {
	var it Item
	err := c.withRetry(ctx, "fetch_item", func() error {
		resp, err := c.do(ctx, http.MethodGet, "/v1/items/"+id, nil, nil)
		if err != nil {
			return err
		}
		return decode(resp, &it)
	})
	return it, err
}

// ResolveOffer looks up the internal offer identifier a mutation must be
// addressed to.
func (c *Client) ResolveOffer(ctx context.Context, itemID string) (string, error) {
	var out struct {
		OfferID string `json:"offerId"`
	}
	err := c.withRetry(ctx, "resolve_offer", func() error {
		resp, err := c.do(ctx, http.MethodGet, "/v1/items/"+itemID+"/offer", nil, nil)
		if err != nil {
			return err
		}
		return decode(resp, &out)
	})
	if err != nil {
		return "", err
	}
	if out.OfferID == "" {
		return "", errors.Errorf("no offer id for item %s", itemID)
	}
	return out.OfferID, nil
}

func (c *Client) MutateItem(ctx context.Context, id string, payload map[string]any) error {
	return c.withRetry(ctx, "mutate_item", func() error {
		resp, err := c.do(ctx, http.MethodPost, "/v1/items/"+id, nil, payload)
		if err != nil {
			return err
		}
		drain(resp)
		return nil
	})
}

func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(ErrTransient, "malformed upstream payload: %v", err)
	}
	return nil
}
