package fluxsdk

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

func opportunityPath(id int64) string {
	return "/opportunities/" + strconv.FormatInt(id, 10)
}

func (c *Client) ListOpportunities(ctx context.Context) (*OpportunityList, error) {
	var out OpportunityList
	if err := c.do(ctx, request{method: http.MethodGet, path: "/opportunities/", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOpportunity(ctx context.Context, id int64) (*domain.Opportunity, error) {
	var out opportunityEnvelope
	if err := c.do(ctx, request{method: http.MethodGet, path: opportunityPath(id), out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) CreateOpportunity(ctx context.Context, in domain.OpportunityInput) (*domain.Opportunity, error) {
	var out opportunityEnvelope
	if err := c.do(ctx, request{method: http.MethodPost, path: "/opportunities/", in: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) UpdateOpportunity(ctx context.Context, id int64, in domain.OpportunityInput) (*domain.Opportunity, error) {
	var out opportunityEnvelope
	if err := c.do(ctx, request{method: http.MethodPut, path: opportunityPath(id), in: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) DeleteOpportunity(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: opportunityPath(id), out: &DeleteResponse{}})
}
