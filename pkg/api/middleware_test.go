package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func idempotentRouter() (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.POST("/pay", Idempotency(NewIdempotencyStore(idempotencyMaxKeys)), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})
	return router, &calls
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pay", bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_MissingKeyRejected(t *testing.T) {
	router, calls := idempotentRouter()
	w := post(router, "", `{"amount":"1000"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, *calls)
}

func TestIdempotency_ReplaySameKeySameBody(t *testing.T) {
	router, calls := idempotentRouter()

	first := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, *calls)
}

func TestIdempotency_SameKeyDifferentBodyConflicts(t *testing.T) {
	router, calls := idempotentRouter()

	post(router, "key-1", `{"amount":"1000"}`)
	w := post(router, "key-1", `{"amount":"2000"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, 1, *calls)
}

func TestIdempotency_DistinctKeysProcessIndependently(t *testing.T) {
	router, calls := idempotentRouter()

	post(router, "key-1", `{"amount":"1000"}`)
	post(router, "key-2", `{"amount":"1000"}`)
	require.Equal(t, 2, *calls)
}

func TestIdempotency_ServerErrorsAreNotReplayed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.POST("/pay", Idempotency(NewIdempotencyStore(idempotencyMaxKeys)), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	first := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusInternalServerError, first.Code)

	// A transient failure must not poison the key: the retry reaches the
	// handler and its success is what gets cached.
	second := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Empty(t, second.Header().Get("Idempotent-Replay"))

	third := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, third.Code)
	require.Equal(t, "true", third.Header().Get("Idempotent-Replay"))
	require.Equal(t, 2, calls)
}

func TestIdempotency_StoreEvictsLeastRecentlyUsedKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.POST("/pay", Idempotency(NewIdempotencyStore(2)), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	post(router, "key-1", `{"amount":"1000"}`)
	post(router, "key-2", `{"amount":"1000"}`)
	post(router, "key-3", `{"amount":"1000"}`)
	require.Equal(t, 3, calls)

	// key-1 fell out of the bounded store, so its retry is a fresh request.
	w := post(router, "key-1", `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Empty(t, w.Header().Get("Idempotent-Replay"))
	require.Equal(t, 4, calls)
}
