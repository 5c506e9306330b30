package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinechat/client"
	"github.com/hrygo/divinechat/internal/version"
	"github.com/hrygo/divinechat/server/auth"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		arg     string
		command bool
	}{
		{"hello", "", "", false},
		{"/regen", "regen", "", true},
		{"/NEW", "new", "", true},
		{"/open  abc ", "open", "abc", true},
		{"/edit 2 new text", "edit", "2 new text", true},
	}
	for _, tt := range tests {
		name, arg, ok := parseCommand(tt.input)
		assert.Equal(t, tt.command, ok, tt.input)
		assert.Equal(t, tt.name, name, tt.input)
		assert.Equal(t, tt.arg, arg, tt.input)
	}
}

func TestParseEdit(t *testing.T) {
	index, text, err := parseEdit("2 what about 3+3?")
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	assert.Equal(t, "what about 3+3?", text)

	_, _, err = parseEdit("two text")
	assert.Error(t, err)
	_, _, err = parseEdit("2")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("DIVINECHAT_SECRET", "cmd-test-secret")
	t.Setenv("DIVINECHAT_DATA", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--owner", "alice"})
	require.NoError(t, rootCmd.Execute())

	claims, err := auth.ParseAccessToken(strings.TrimSpace(out.String()), []byte("cmd-test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestCheckServer(t *testing.T) {
	healthz := func(serverVersion string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/healthz" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","version":%q}`, serverVersion)
		}))
	}

	t.Run("compatible", func(t *testing.T) {
		server := healthz(version.DevVersion)
		defer server.Close()

		var out bytes.Buffer
		checkServer(context.Background(), client.New(server.URL, "token", nil), &out)
		assert.Empty(t, out.String())
	})

	t.Run("incompatible", func(t *testing.T) {
		server := healthz("99.0.0")
		defer server.Close()

		var out bytes.Buffer
		checkServer(context.Background(), client.New(server.URL, "token", nil), &out)
		assert.Contains(t, out.String(), `server version "99.0.0" may not be compatible`)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := healthz(version.Version)
		server.Close()

		var out bytes.Buffer
		checkServer(context.Background(), client.New(server.URL, "token", nil), &out)
		assert.Contains(t, out.String(), "health check failed")
	})
}
