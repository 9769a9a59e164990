package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"drmp-assignment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/organizations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":2000,"type":"success","message":"ok","result":[
			{"org_id":"O1","org_name":"Beijing Law Firm","status":"ACTIVE","service_regions":["Beijing"],
			 "monthly_case_capacity":200,"current_load_percentage":10,"membership_paid":true},
			{"org_id":"O2","org_name":"Shanghai Mediation","status":"ACTIVE","service_regions":["Shanghai"],
			 "monthly_case_capacity":200,"membership_paid":true}
		]}`))
	}))
	defer srv.Close()

	c := NewOrganizationClient(srv.URL, time.Second, zap.NewNop())
	orgs, err := c.ListOrganizations(context.Background())

	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, 10.0, *orgs[0].CurrentLoadPercentage)
	assert.Nil(t, orgs[1].CurrentLoadPercentage)
	assert.Equal(t, domain.OrgStatusActive, orgs[1].Status)
}

func TestListOrganizations_BusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":-1,"type":"error","message":"tenant disabled","result":null}`))
	}))
	defer srv.Close()

	_, err := NewOrganizationClient(srv.URL, time.Second, zap.NewNop()).ListOrganizations(context.Background())

	assert.ErrorContains(t, err, "tenant disabled")
}

func TestListOrganizations_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code":-1,"type":"error","message":"upstream"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":2000,"type":"success","message":"ok","result":[]}`))
	}))
	defer srv.Close()

	orgs, err := NewOrganizationClient(srv.URL, time.Second, zap.NewNop()).ListOrganizations(context.Background())

	require.NoError(t, err)
	assert.Empty(t, orgs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/organizations/O1":
			_, _ = w.Write([]byte(`{"code":2000,"type":"success","message":"ok","result":{"org_id":"O1","org_name":"A"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":-1,"type":"error","message":"not found"}`))
		}
	}))
	defer srv.Close()

	c := NewOrganizationClient(srv.URL, time.Second, zap.NewNop())

	o, err := c.GetOrganization(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "A", o.OrgName)

	_, err = c.GetOrganization(context.Background(), "O9")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
