package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM answers both provider APIs: every classification is "none" and
// every generation is the same line.
func fakeLLM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/messages":
			io.WriteString(w, `{"content":[{"type":"text","text":"{\"risk_level\":\"none\",\"reasoning\":\"small talk\"}"}]}`)
		case "/chat/completions":
			io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Thanks for sharing that."}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, llmURL string) {
	t.Setenv("DEEPSEEK_BASE_URL", llmURL)
	t.Setenv("ANTHROPIC_BASE_URL", llmURL)
	t.Setenv("AUTO_FLAG_THERAPIST", "false")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PROMPTS_FILE", "")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	setEnv(t, fakeLLM(t).URL)
	dsn := filepath.Join(t.TempDir(), "migrate.db")

	out, err := run(t, "", "migrate", "version", "--driver", "sqlite", "--database-url", dsn)
	require.NoError(t, err)
	assert.Equal(t, "schema version 0 (clean)\n", out)

	out, err = run(t, "", "migrate", "up", "--driver", "sqlite", "--database-url", dsn)
	require.NoError(t, err)
	assert.Equal(t, "schema version 1 (clean)\n", out)

	_, err = run(t, "", "migrate", "down", "zero", "--driver", "sqlite", "--database-url", dsn)
	assert.Error(t, err)
}

func TestChatCommand(t *testing.T) {
	setEnv(t, fakeLLM(t).URL)
	dsn := filepath.Join(t.TempDir(), "chat.db")

	out, err := run(t, "yes\n\n/end\n", "chat", "--driver", "sqlite", "--database-url", dsn)
	require.NoError(t, err)

	assert.Contains(t, out, "session ")
	assert.Equal(t, 3, strings.Count(out, "coach> "), out)
	assert.Contains(t, out, "status completed")
}
