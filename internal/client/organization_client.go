// Package client 外部协作服务的 HTTP 客户端
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const resultSuccess = 2000

// envelope 机构管理服务的统一响应格式
type envelope[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// OrganizationClient 机构管理服务客户端（只读快照）
type OrganizationClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewOrganizationClient 创建机构服务客户端
func NewOrganizationClient(baseURL string, timeout time.Duration, logger *zap.Logger) *OrganizationClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")

	return &OrganizationClient{httpClient: client, logger: logger}
}

var _ repository.OrganizationsRepository = (*OrganizationClient)(nil)

// ListOrganizations 拉取全部机构快照
func (c *OrganizationClient) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var body envelope[[]domain.Organization]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&body).
		Get("/api/v1/organizations")
	if err != nil {
		c.logger.Error("Organization service call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call organization service: %w", err)
	}
	if resp.IsError() || body.Code != resultSuccess {
		return nil, fmt.Errorf("organization service error: %s (http %d, code %d)", body.Message, resp.StatusCode(), body.Code)
	}

	c.logger.Debug("Fetched organization snapshot", zap.Int("count", len(body.Result)))
	return body.Result, nil
}

// GetOrganization 获取单个机构
func (c *OrganizationClient) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	var body envelope[*domain.Organization]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("orgID", orgID).
		SetResult(&body).
		SetError(&body).
		Get("/api/v1/organizations/{orgID}")
	if err != nil {
		return nil, fmt.Errorf("failed to call organization service: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, domain.NotFound("organization", orgID)
	}
	if resp.IsError() || body.Code != resultSuccess {
		return nil, fmt.Errorf("organization service error: %s (http %d, code %d)", body.Message, resp.StatusCode(), body.Code)
	}
	if body.Result == nil {
		return nil, domain.NotFound("organization", orgID)
	}
	return body.Result, nil
}
