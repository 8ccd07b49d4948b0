package conversation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbt-coach/internal/prompts"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := prompts.NewStore()
	require.NoError(t, err)
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(newTestService(t, nil, nil), store))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeTurn(t *testing.T, resp *http.Response) TurnResponse {
	t.Helper()
	var out TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandler_Conversation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/chat/session", CreateSessionRequest{PatientID: uuid.NewString()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeTurn(t, resp)
	assert.Equal(t, StateConsent, created.State)
	assert.Equal(t, "none", created.RiskLevel)
	assert.NotEmpty(t, created.PromptVersion)

	resp = postJSON(t, srv.URL+"/chat/message", MessageRequest{SessionID: created.SessionID, Message: "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decodeTurn(t, resp)
	assert.Equal(t, StateIntake, turn.State)
	assert.Equal(t, "goal", turn.Step)
	assert.False(t, turn.ShouldEndSession)

	get, err := http.Get(srv.URL + "/chat/session/" + created.SessionID)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	var s Session
	require.NoError(t, json.NewDecoder(get.Body).Decode(&s))
	assert.Equal(t, StateIntake, s.State)
	assert.Equal(t, 1, s.TurnCount)

	resp = postJSON(t, srv.URL+"/chat/session/"+created.SessionID+"/end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeTurn(t, resp).ShouldEndSession)

	resp = postJSON(t, srv.URL+"/chat/message", MessageRequest{SessionID: created.SessionID, Message: "hello"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_HighRiskResponse(t *testing.T) {
	srv := newTestServer(t)

	created := decodeTurn(t, postJSON(t, srv.URL+"/chat/session", nil))
	resp := postJSON(t, srv.URL+"/chat/message", MessageRequest{SessionID: created.SessionID, Message: "I want to hurt myself"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	turn := decodeTurn(t, resp)
	assert.Equal(t, StateEnded, turn.State)
	assert.Equal(t, StatusTerminated, turn.Status)
	assert.Equal(t, "high", turn.RiskLevel)
	assert.NotEmpty(t, turn.RiskEventID)
	assert.True(t, turn.ShouldEndSession)
}

func TestHandler_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/chat/message", MessageRequest{SessionID: "not-a-uuid", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/chat/message", MessageRequest{SessionID: uuid.NewString(), Message: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	get, err := http.Get(srv.URL + "/chat/session/" + uuid.NewString())
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusNotFound, get.StatusCode)

	resp = postJSON(t, srv.URL+"/chat/session", CreateSessionRequest{PatientID: "patient-7"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ReloadPrompts(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/admin/prompts/reload", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, prompts.Default().Version, body["version"])
}
