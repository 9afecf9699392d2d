package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ukydev/plant-maintenance/internal/maintenance"
	"github.com/ukydev/plant-maintenance/internal/models"
)

// apiError mirrors the error body written by the API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return &apiClient{http: c}
}

// session is a logged-in employee.
type session struct {
	api      *apiClient
	token    string
	employee models.Employee
}

func (c *apiClient) login(ctx context.Context, email, password string) (*session, error) {
	var out models.LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(models.LoginRequest{Email: email, Password: password}).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/auth/login")
	if err := check(resp, err, "login "+email); err != nil {
		return nil, err
	}
	return &session{api: c, token: out.Token, employee: out.Employee}, nil
}

func (s *session) post(ctx context.Context, path string, body interface{}, action string) (*models.MaintenanceRequest, error) {
	var out models.MaintenanceRequest
	resp, err := s.api.http.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetBody(body).
		SetResult(&out).
		SetError(&apiError{}).
		Post(path)
	if err := check(resp, err, action); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *session) createRequest(ctx context.Context, in maintenance.CreateInput) (*models.MaintenanceRequest, error) {
	return s.post(ctx, "/requests", in, "create request")
}

func (s *session) assign(ctx context.Context, id string, in maintenance.AssignInput) (*models.MaintenanceRequest, error) {
	return s.post(ctx, "/requests/"+id+"/assign", in, "assign "+id)
}

func (s *session) updateStatus(ctx context.Context, id string, in maintenance.StatusInput) (*models.MaintenanceRequest, error) {
	return s.post(ctx, "/requests/"+id+"/status", in, "update status "+id)
}

func (s *session) close(ctx context.Context, id string, in maintenance.CloseInput) (*models.MaintenanceRequest, error) {
	return s.post(ctx, "/requests/"+id+"/close", in, "close "+id)
}

func check(resp *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
			return fmt.Errorf("%s: %d %s: %s", action, resp.StatusCode(), e.Code, e.Message)
		}
		return fmt.Errorf("%s: status %d", action, resp.StatusCode())
	}
	return nil
}
