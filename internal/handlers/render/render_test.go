package render

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_JSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		data := map[string]any{"key1": 1, "key2": "222"}
		JSON(w, data)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"key1":1,"key2":"222"}`+"\n", string(body))
}

func TestRender_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, "something terrible happened", http.StatusForbidden)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"message": "something terrible happened"}`, string(body))
}

func TestRender_BindAndValidate(t *testing.T) {
	type SignUpRequest struct {
		Name     string `json:"name" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := BindAndValidate[SignUpRequest](w, r)
		if err != nil {
			return
		}
		JSON(w, data)
	}))
	defer ts.Close()

	post := func(t *testing.T, body string) (int, string) {
		t.Helper()

		resp, err := http.Post(ts.URL+"/test", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(raw)
	}

	t.Run("valid payload", func(t *testing.T) {
		status, body := post(t, `{"name": "nk", "email": "nk@example.com", "password": "password123"}`)

		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"name": "nk", "email": "nk@example.com", "password": "password123"}`, body)
	})

	t.Run("json parsing error", func(t *testing.T) {
		status, body := post(t, `invalid-json`)

		require.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{
			"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
		}`, body)
	})

	t.Run("invalid type", func(t *testing.T) {
		status, body := post(t, `{"name": "nk", "email": "nk@example.com", "password": 42}`)

		require.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{
			"message": "Invalid data type for field 'password'"
		}`, body)
	})

	t.Run("validation failures use json names", func(t *testing.T) {
		status, body := post(t, `{"email": "not-an-email", "password": "short"}`)

		require.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{
			"message": "Request validation failed",
			"fields": {
				"name": "This field is required",
				"email": "Must be a valid email address",
				"password": "Value is too short (minimum 8)"
			}
		}`, body)
	})
}
