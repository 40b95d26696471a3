package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"
)

func parseHeaderLines(t *testing.T, out string) http.Header {
	t.Helper()
	h := http.Header{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", line)
		}
		h.Set(name, value)
	}
	return h
}

func TestSignCmdOutputVerifies(t *testing.T) {
	useConfig(t, &config.Config{Auth: config.AuthConfig{ServiceID: "cli", Secret: testSecret}})

	body := []byte(`{"text":"say hello"}`)
	bodyPath := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(bodyPath, body, 0644); err != nil {
		t.Fatal(err)
	}

	cmd, buf := testCommand("table")
	cmd.Flags().String("body", bodyPath, "")
	if err := signCmd.RunE(cmd, []string{"post", "/message"}); err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	headers := auth.HeadersFrom(parseHeaderLines(t, buf.String()))
	verifier := auth.NewVerifier(testSecret, 30*time.Second, auth.NewMemoryNonceStore())
	caller, err := verifier.Verify(context.Background(), headers, http.MethodPost, "/message", body, []string{"cli"})
	if err != nil {
		t.Fatalf("signed headers did not verify: %v", err)
	}
	if caller != "cli" {
		t.Errorf("caller = %q, want cli", caller)
	}

	// A different body must not verify against the same headers.
	fresh := auth.NewVerifier(testSecret, 30*time.Second, auth.NewMemoryNonceStore())
	if _, err := fresh.Verify(context.Background(), headers, http.MethodPost, "/message", []byte(`{}`), []string{"cli"}); err == nil {
		t.Error("signature should not verify for a different body")
	}
}

func TestSignCmdReadsStdinAndEmitsJSON(t *testing.T) {
	useConfig(t, &config.Config{Auth: config.AuthConfig{ServiceID: "codebot", Secret: testSecret}})

	cmd, buf := testCommand("json")
	cmd.Flags().String("body", "-", "")
	cmd.SetIn(strings.NewReader(`{"rationale":"r","needs":"n"}`))
	if err := signCmd.RunE(cmd, []string{"POST", "/approvals/request"}); err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	var headers map[string]string
	if err := json.Unmarshal(buf.Bytes(), &headers); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if headers[auth.HeaderServiceID] != "codebot" {
		t.Errorf("service id header = %q", headers[auth.HeaderServiceID])
	}
	if !strings.HasPrefix(headers[auth.HeaderSignature], "sha256=") {
		t.Errorf("signature header = %q", headers[auth.HeaderSignature])
	}
}

func TestSignCmdRequiresSecret(t *testing.T) {
	useConfig(t, &config.Config{Auth: config.AuthConfig{ServiceID: "cli"}})

	cmd, _ := testCommand("table")
	cmd.Flags().String("body", "", "")
	if err := signCmd.RunE(cmd, []string{"GET", "/skills"}); err == nil {
		t.Error("sign should fail without a secret")
	}
}
