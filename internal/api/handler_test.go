package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SekaTable/internal/game/manager"
	"SekaTable/internal/game/table"
	"SekaTable/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	err      error
	acted    []ActionRequest
	blinds   []ActionRequest
	messages []string
	left     bool
}

func (f *fakeTable) State() table.HandState {
	s := table.NewHandState()
	s.Session = table.Session{ID: "t1", Name: "High Rollers", Status: table.StatusInProgress}
	s.Phase = table.PhaseInProgress
	s.Pot = 40
	return s
}

func (f *fakeTable) Identity() table.Identity {
	return table.Identity{UserID: "u1", DisplayName: "Alice"}
}

func (f *fakeTable) Countdown() (int, bool) { return 3, true }

func (f *fakeTable) Act(_ context.Context, action string, amount float64) error {
	f.acted = append(f.acted, ActionRequest{Action: action, Amount: amount})
	return f.err
}

func (f *fakeTable) PlayBlind(_ context.Context, action string, amount float64) error {
	f.blinds = append(f.blinds, ActionRequest{Action: action, Amount: amount})
	return f.err
}

func (f *fakeTable) ViewCards(context.Context) (manager.ViewResult, error) {
	if f.err != nil {
		return manager.ViewResult{}, f.err
	}
	return manager.ViewResult{Hand: []table.Card{{Rank: "A", Suit: "spades"}}, HandDescription: "ace high"}, nil
}

func (f *fakeTable) Chat(_ context.Context, message string) error {
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeTable) Leave(context.Context) error {
	f.left = true
	return f.err
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func setup(f *fakeTable) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(f))
}

func TestHealth(t *testing.T) {
	w := do(setup(&fakeTable{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStateRoute(t *testing.T) {
	w := do(setup(&fakeTable{}), http.MethodGet, "/table/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.Self.UserID)
	assert.Equal(t, 40.0, resp.State.Pot)
	assert.Equal(t, "High Rollers", resp.State.Session.Name)
	assert.Equal(t, CountdownView{Remaining: 3, Visible: true}, resp.Countdown)
}

func TestActionRoute(t *testing.T) {
	f := &fakeTable{}
	r := setup(f)

	w := do(r, http.MethodPost, "/table/action", `{"action":"raise","amount":20}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []ActionRequest{{Action: "raise", Amount: 20}}, f.acted)

	w = do(r, http.MethodPost, "/table/action", `{"amount":20}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/table/blind", `{"action":"blind_call","amount":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.blinds, 1)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"rejected", &websocket.ActionRejectedError{Event: "player_action", Message: "Not your turn"}, http.StatusUnprocessableEntity},
		{"not connected", websocket.ErrNotConnected, http.StatusServiceUnavailable},
		{"timeout", websocket.ErrTimeout, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(setup(&fakeTable{err: tc.err}), http.MethodPost, "/table/action", `{"action":"call"}`)
			assert.Equal(t, tc.code, w.Code)
		})
	}

	w := do(setup(&fakeTable{err: &websocket.ActionRejectedError{Message: "Not your turn"}}), http.MethodPost, "/table/view-cards", "")
	assert.JSONEq(t, `{"error":"Not your turn"}`, w.Body.String())
}

func TestViewCardsChatLeave(t *testing.T) {
	f := &fakeTable{}
	r := setup(f)

	w := do(r, http.MethodPost, "/table/view-cards", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"handDescription":"ace high"`)

	w = do(r, http.MethodPost, "/table/chat", `{"message":"gl hf"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"gl hf"}, f.messages)

	w = do(r, http.MethodPost, "/table/leave", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.left)
}

func TestLeaveWhileDisconnected(t *testing.T) {
	f := &fakeTable{err: websocket.ErrNotConnected}
	w := do(setup(f), http.MethodPost, "/table/leave", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.left)
}
