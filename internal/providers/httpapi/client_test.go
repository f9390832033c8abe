package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "secret-token", 5*time.Second, nil), srv
}

func TestGetJSONSendsAuthAndDecodes(t *testing.T) {
	var gotAuth, gotAccept string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{"name":"demo"}`))
	}))

	var out struct {
		Name string `json:"name"`
	}
	err := client.GetJSON(context.Background(), "detect/rules", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "demo", out.Name)
}

func TestGetJSONAppendsQuery(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("pageToken")
		w.Write([]byte(`{}`))
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), "detect/rules", url.Values{"pageToken": {"abc"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "abc", gotToken)
}

func TestGetJSONReturnsStatusError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"denied"}`))
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), "detect/rules", nil, &out)
	require.Error(t, err)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)
	assert.Equal(t, http.MethodGet, serr.Method)
	assert.Contains(t, serr.Body, "denied")
}

func TestGetJSONMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), "detect/rules", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestPostJSONSendsBodyAndDecodes(t *testing.T) {
	var gotContentType string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		var in struct {
			RuleText string `json:"rule_text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "rule x {}", in.RuleText)
		w.Write([]byte(`{"ruleId":"ru_123"}`))
	}))

	var out struct {
		RuleID string `json:"ruleId"`
	}
	err := client.PostJSON(context.Background(), "detect/rules", map[string]string{"rule_text": "rule x {}"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "ru_123", out.RuleID)
}

func TestPostJSONNilOutIgnoresBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	err := client.PostJSON(context.Background(), "detect/rules:verifyRule", map[string]string{"rule_text": "x"}, nil)
	require.NoError(t, err)
}

func TestGetBytesReturnsRawBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rule demo { meta: }"))
	}))

	body, err := client.GetBytes(context.Background(), "repositories/ws/repo/src/main/rules/demo.yaral")
	require.NoError(t, err)
	assert.Equal(t, "rule demo { meta: }", string(body))
}

func TestAbsoluteURLBypassesBase(t *testing.T) {
	var gotPath string
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL+"/next/page?page=2", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "/next/page", gotPath)
}

func TestTransportErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := New(srv.URL, "t", time.Second, nil)
	srv.Close()

	var out map[string]any
	err := client.GetJSON(context.Background(), "anything", nil, &out)
	require.Error(t, err)
}
