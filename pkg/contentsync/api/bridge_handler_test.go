package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	"github.com/breffi/content-sync/pkg/contentsync/api"
	memoryrepo "github.com/breffi/content-sync/pkg/contentsync/repo/memory"
)

func newBridgeServer(t *testing.T) (*httptest.Server, contentsync.Service) {
	t.Helper()

	svc, err := contentsync.New(contentsync.WithRepository(memoryrepo.New()))
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewBridgeHandler(svc).Routes())
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBridgeEnqueueAndNext(t *testing.T) {
	srv, _ := newBridgeServer(t)

	resp := postJSON(t, srv.URL+"/queues/outbound/messages", api.EnqueueRequest{Command: "open"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[contentsync.BridgeMessage](t, resp)
	assert.NotEmpty(t, created.GUID)

	resp, err := http.Get(srv.URL + "/queues/outbound/messages/next")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	head := decodeJSON[contentsync.BridgeMessage](t, resp)
	assert.Equal(t, created.GUID, head.GUID)
	assert.Equal(t, "open", head.Command)
}

func TestBridgeEnqueueValidation(t *testing.T) {
	srv, _ := newBridgeServer(t)

	resp := postJSON(t, srv.URL+"/queues/outbound/messages", api.EnqueueRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBridgeNextOnEmptyQueue(t *testing.T) {
	srv, _ := newBridgeServer(t)

	resp, err := http.Get(srv.URL + "/queues/empty/messages/next")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridgeAnswerLifecycle(t *testing.T) {
	srv, _ := newBridgeServer(t)

	resp := postJSON(t, srv.URL+"/queues/q/messages", api.EnqueueRequest{Command: "ping", GUID: "guid-1"})
	resp.Body.Close()

	answerURL := srv.URL + "/messages/guid-1/answer"
	resp = postJSON(t, answerURL, api.AnswerRequest{Response: "pong"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// A second answer conflicts: the message is terminal.
	resp = postJSON(t, answerURL, api.AnswerRequest{Response: "pong-again"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/messages/unknown/answer", api.AnswerRequest{Response: "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridgeSurfaceNavigation(t *testing.T) {
	srv, _ := newBridgeServer(t)

	resp, err := http.Get(srv.URL + "/surface")
	require.NoError(t, err)
	state := decodeJSON[api.SurfaceStateResponse](t, resp)
	assert.Equal(t, contentsync.NavIdle, state.State)

	for _, s := range []contentsync.NavState{
		contentsync.NavProvisional,
		contentsync.NavCommitted,
		contentsync.NavFinished,
	} {
		resp = postJSON(t, srv.URL+"/surface/navigation", api.NavigationRequest{State: s})
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode, fmt.Sprintf("transition to %s", s))
	}

	// Finished -> Committed is not a legal edge.
	resp = postJSON(t, srv.URL+"/surface/navigation", api.NavigationRequest{State: contentsync.NavCommitted})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBridgePurgeEndpoint(t *testing.T) {
	srv, _ := newBridgeServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/queues/q/answered", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeJSON[api.PurgeResponse](t, resp)
	assert.Zero(t, out.Purged)
}
