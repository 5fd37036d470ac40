package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrNoApprovalKey is returned when the approval response carries no key.
var ErrNoApprovalKey = errors.New("approval response has no key")

const approvalPath = "/oauth2/Approval"

type approvalRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// ApprovalKey issues a KIS websocket approval key.
func (c *Client) ApprovalKey(ctx context.Context, appKey, secretKey string) (string, error) {
	if appKey == "" || secretKey == "" {
		return "", fmt.Errorf("%w: app key and secret are required", model.ErrConfiguration)
	}

	var resp approvalResponse
	err := c.post(ctx, approvalPath, approvalRequest{
		GrantType: "client_credentials",
		AppKey:    appKey,
		SecretKey: secretKey,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("approval request: %w", err)
	}
	if resp.ApprovalKey == "" {
		return "", ErrNoApprovalKey
	}

	c.logger.Info("approval key issued", "base_url", c.baseURL)
	return resp.ApprovalKey, nil
}
