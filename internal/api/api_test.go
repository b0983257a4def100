package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-api/internal/api"
	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/service"
	"github.com/storyforge/storyforge-api/internal/service/auth"
	"github.com/storyforge/storyforge-api/internal/store/memory"
)

type apiFixture struct {
	server *httptest.Server
	ledger *memory.LedgerStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-at-least-32-characters-long",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	accountStore := memory.NewAccountStore()
	taskStore := memory.NewTaskStore()
	ledgerStore := memory.NewLedgerStore()

	credits := config.CreditsConfig{
		BookCost:    100,
		ChapterCost: 10,
		SignupBonus: 50,
	}

	accounts := service.NewAccountService(nil, accountStore, ledgerStore,
		auth.NewBcryptHasher(), credits.SignupBonus)
	tasks := service.NewTaskService(nil, taskStore, ledgerStore, credits, events.NopNotifier{})

	server := httptest.NewServer(api.NewRouter(accounts, tasks, jwtService, nil))
	t.Cleanup(server.Close)

	return &apiFixture{server: server, ledger: ledgerStore}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

// register creates an account (with the 50-credit signup bonus) and
// returns its token.
func (f *apiFixture) register(t *testing.T, email string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("register and login round trip", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)

		resp, body := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":    "author@example.com",
			"password": "correct horse battery staple",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.NotEmpty(t, body["token"])
		assert.Equal(t, float64(50), body["credit_balance"])

		resp, body = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "author@example.com",
			"password": "correct horse battery staple",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.register(t, "author@example.com")

		resp, _ := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":    "author@example.com",
			"password": "correct horse battery staple",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.register(t, "author@example.com")

		resp, _ := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "author@example.com",
			"password": "wrong password entirely",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		resp, _ := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":    "author@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTaskEndpoints(t *testing.T) {
	t.Parallel()

	createTask := func(t *testing.T, f *apiFixture, token, taskType string) (*http.Response, map[string]any) {
		t.Helper()
		return f.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
			"type":           taskType,
			"priority":       0,
			"correlation_id": uuid.New().String(),
		})
	}

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		resp, _ := f.do(t, http.MethodPost, "/api/tasks", "", map[string]any{"type": "chapter"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("admits a task and debits credits", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		resp, body := createTask(t, f, token, "chapter")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, float64(10), body["credits_cost"])

		resp, body = f.do(t, http.MethodGet, "/api/credits/balance", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(40), body["balance"])
	})

	t.Run("insufficient credits is payment required", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		// Signup bonus is 50, a book costs 100.
		resp, _ := createTask(t, f, token, "book")
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

		resp, body := f.do(t, http.MethodGet, "/api/credits/balance", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(50), body["balance"])
	})

	t.Run("unknown task type is bad request", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		resp, _ := createTask(t, f, token, "haiku")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("cancel refunds and double cancel conflicts", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		_, body := createTask(t, f, token, "chapter")
		taskID := body["id"].(string)

		resp, body := f.do(t, http.MethodDelete, "/api/tasks/"+taskID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "cancelled", body["status"])

		resp, body = f.do(t, http.MethodGet, "/api/credits/balance", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(50), body["balance"])

		resp, _ = f.do(t, http.MethodDelete, "/api/tasks/"+taskID, token, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("tasks are invisible to other accounts", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		owner := f.register(t, "owner@example.com")
		other := f.register(t, "other@example.com")

		_, body := createTask(t, f, owner, "chapter")
		taskID := body["id"].(string)

		resp, _ := f.do(t, http.MethodGet, "/api/tasks/"+taskID, other, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = f.do(t, http.MethodDelete, "/api/tasks/"+taskID, other, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("active list shows pending tasks", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		createTask(t, f, token, "chapter")
		createTask(t, f, token, "chapter")

		resp, body := f.do(t, http.MethodGet, "/api/tasks", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		tasks := body["tasks"].([]any)
		assert.Len(t, tasks, 2)
	})
}

func TestCreditEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("purchase raises the balance", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		resp, body := f.do(t, http.MethodPost, "/api/credits/purchase", token, map[string]any{
			"amount":      200,
			"description": "starter pack",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(250), body["balance"])
	})

	t.Run("non-positive purchase fails validation", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		resp, _ := f.do(t, http.MethodPost, "/api/credits/purchase", token, map[string]any{
			"amount": -5,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("transactions list the full ledger", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		token := f.register(t, "author@example.com")

		_, body := f.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
			"type":           "chapter",
			"priority":       0,
			"correlation_id": uuid.New().String(),
		})
		taskID := body["id"].(string)
		f.do(t, http.MethodDelete, "/api/tasks/"+taskID, token, nil)

		resp, body := f.do(t, http.MethodGet, "/api/credits/transactions", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		txns := body["transactions"].([]any)
		// signup bonus, generation debit, refund, newest first
		require.Len(t, txns, 3)

		kinds := make([]string, 0, 3)
		for _, raw := range txns {
			txn := raw.(map[string]any)
			kinds = append(kinds, fmt.Sprint(txn["kind"]))
		}
		assert.Equal(t, []string{"refund", "generation", "purchase"}, kinds)
	})
}
