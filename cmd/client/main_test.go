package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"skillforge/internal/api"
	"skillforge/internal/credential"
	"skillforge/internal/files"
	"skillforge/internal/render"
	"skillforge/internal/session"
)

const (
	testToken          = "tok-cli"
	testAccomplishment = "0b6f3f0e-8c1a-4d8e-b1f2-5a9e7d3c2b10"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func issueJWT(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	claims := credential.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://skillforge.io", Subject: "a@b.c"},
		VC: credential.VerifiableCredential{
			ID:   "urn:uuid:" + testAccomplishment,
			Type: []string{"VerifiableCredential"},
			CredentialSubject: credential.SubjectClaim{
				Accomplishment: credential.AccomplishmentClaim{Name: "Say hello", AchievedOn: "2025-02-03T04:05:06"},
			},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func newBackend(t *testing.T, vc string) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc(api.PathRegister, func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, map[string]any{"id": 7, "email": req.Email, "name": req.Name})
	}).Methods(http.MethodPost)
	r.HandleFunc(api.PathToken, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(w, map[string]string{"access_token": testToken, "token_type": "bearer"})
	}).Methods(http.MethodPost)
	r.HandleFunc(api.PathGoalParse, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"full_plan_json": `[{"id":"q1","title":"Say hello"},{"id":"q2","title":"Write tests"}]`,
			"first_quest":    map[string]string{"id": "q1", "name": "Say hello"},
		})
	}).Methods(http.MethodPost)
	r.HandleFunc(api.PathAccomplish, func(w http.ResponseWriter, r *http.Request) {
		var req api.AccomplishmentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, map[string]any{
			"message":        "Accomplishment processed",
			"accomplishment": map[string]string{"id": testAccomplishment, "name": req.Name, "description": req.Description},
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/accomplishments/{id}/issue-credential", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAccomplishment, mux.Vars(r)["id"])
		writeJSON(w, map[string]string{"verifiable_credential_jwt": vc})
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// isolate points HOME and every override at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"SERVER", "TIMEOUT", "LOG_FILE", "WALLET_PATH", "WALLET_KEY_PATH", "ISSUER_KEY_PATH", "NO_COLOR"} {
		t.Setenv("SKILLFORGE_"+k, "")
		require.NoError(t, os.Unsetenv("SKILLFORGE_"+k))
	}
	t.Setenv(files.WalletKeyEnv, "")
	return home
}

func run(t *testing.T, home, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{
		"--config", filepath.Join(home, "missing.yaml"),
		"--log-file", filepath.Join(home, "client.log"),
		"--no-color",
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    shellCommand
		wantErr bool
	}{
		{line: "login a@b.c", want: shellCommand{action: "login", input: session.Input{Email: "a@b.c"}, password: true}},
		{line: "register a@b.c Ada Lovelace", want: shellCommand{action: "register", input: session.Input{Email: "a@b.c", Name: "Ada Lovelace"}, password: true}},
		{line: "goal  learn   Go  ", want: shellCommand{action: "goal", input: session.Input{Goal: "learn   Go"}}},
		{line: "done wrote it", want: shellCommand{action: "accomplish", input: session.Input{Accomplishment: "wrote it"}}},
		{line: "credential abc", want: shellCommand{action: "credential", input: session.Input{AccomplishmentID: "abc"}}},
		{line: "QUESTS", want: shellCommand{action: "quests"}},
		{line: "login", wantErr: true},
		{line: "register a@b.c", wantErr: true},
		{line: "goal", wantErr: true},
		{line: "credential", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShellQuestFlow(t *testing.T) {
	home := isolate(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv := newBackend(t, issueJWT(t, key))

	_, err = run(t, home, "", "wallet", "init")
	require.NoError(t, err)

	script := strings.Join([]string{
		"goal learn go",
		"login a@b.c",
		"wrong",
		"login a@b.c",
		"secret",
		"goal learn go",
		"accomplish printed hello world",
		"quests",
		"fly",
		"exit",
	}, "\n")
	out, err := run(t, home, script, "--server", srv.URL, "shell")
	require.NoError(t, err)

	assert.Contains(t, out, "error: not logged in")
	assert.Contains(t, out, "Incorrect email or password")
	assert.Equal(t, 1, strings.Count(out, hintUnauthorized))
	assert.Contains(t, out, "Logged in as a@b.c")
	assert.Contains(t, out, "Accomplishment processed")
	assert.Contains(t, out, "Accomplishment: Say hello")
	assert.Contains(t, out, "  Write tests")
	assert.Contains(t, out, "[x] 1. Say hello")
	assert.Contains(t, out, "[>] 2. Write tests")
	assert.Contains(t, out, "unknown action")

	out, err = run(t, home, "", "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Say hello")
	assert.Contains(t, out, testAccomplishment)
}

func TestPrompterLine(t *testing.T) {
	p := newPrompter(strings.NewReader("a\nb\n"), io.Discard)
	defer p.close()
	ctx := context.Background()

	line, err := p.line(ctx, "> ")
	require.NoError(t, err)
	assert.Equal(t, "a", line)
	line, err = p.line(ctx, "> ")
	require.NoError(t, err)
	assert.Equal(t, "b", line)

	_, err = p.line(ctx, "> ")
	assert.ErrorIs(t, err, io.EOF)
	_, err = p.line(ctx, "> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestShellStopsOnCancelAtIdlePrompt(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	var out bytes.Buffer
	view := render.NewTerminal(&out, render.WithPlain(true))
	sess := session.New(api.NewClient("http://127.0.0.1:0"), view)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runShell(ctx, newPrompter(in, &out), sess, view, zaptest.NewLogger(t))
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shell did not return after cancellation")
	}
}

func TestRegisterCommand(t *testing.T) {
	home := isolate(t)
	srv := newBackend(t, "")

	out, err := run(t, home, "pw\n", "--server", srv.URL, "register", "--email", "new@b.c", "--name", "New")
	require.NoError(t, err)
	assert.Contains(t, out, `"email":"new@b.c"`)
}

func TestDecodeCommand(t *testing.T) {
	home := isolate(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	token := issueJWT(t, key)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemPath := filepath.Join(home, "issuer.pem")
	require.NoError(t, os.WriteFile(pemPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0600))

	out, err := run(t, home, "", "decode", token)
	require.NoError(t, err)
	assert.Contains(t, out, "Accomplishment: Say hello")
	assert.NotContains(t, out, "Signature:")

	out, err = run(t, home, "", "decode", "--verify", "--key", pemPath, token)
	require.NoError(t, err)
	assert.Contains(t, out, "Signature:      verified")

	_, err = run(t, home, "", "decode", "--verify", token)
	assert.Error(t, err)
}

func TestWalletCommands(t *testing.T) {
	home := isolate(t)

	_, err := run(t, home, "", "wallet", "list")
	assert.ErrorIs(t, err, files.ErrWalletKeyMissing)

	out, err := run(t, home, "", "wallet", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wallet.key")

	_, err = run(t, home, "", "wallet", "init")
	assert.ErrorIs(t, err, files.ErrWalletKeyExists)

	out, err = run(t, home, "", "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Wallet is empty")

	_, err = run(t, home, "", "wallet", "show", "nope")
	assert.ErrorIs(t, err, files.ErrEntryNotFound)
}
