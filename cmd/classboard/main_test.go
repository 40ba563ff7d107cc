package main

import (
	"bytes"
	"strings"
	"testing"

	"classboard/internal/auth"
)

const testSecret = "cmd-test-secret-0123456789abcdef"

func TestRun_TokenCommand(t *testing.T) {
	t.Setenv("CLASSBOARD_SECURITY_JWT_SECRET", testSecret)

	var out bytes.Buffer
	if err := run([]string{"token", "-user", "t1", "-role", "teacher", "-channel", "C1"}, &out); err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	verifier, err := auth.NewVerifier(testSecret, "classboard")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := verifier.Verify(strings.TrimSpace(out.String()), "C1", "t1")
	if err != nil {
		t.Fatalf("Minted token did not verify: %v", err)
	}
	if claims.Role != "teacher" {
		t.Errorf("Expected teacher role, got %s", claims.Role)
	}
}

func TestRun_TokenCommandValidation(t *testing.T) {
	t.Setenv("CLASSBOARD_SECURITY_JWT_SECRET", testSecret)

	if err := run([]string{"token", "-role", "teacher"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error without -user")
	}
	if err := run([]string{"token", "-user", "u", "-role", "admin"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown role")
	}
}

func TestRun_TokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("CLASSBOARD_SECURITY_JWT_SECRET", "")
	if err := run([]string{"token", "-user", "u"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error without a signing secret")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := run([]string{"paint"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown command")
	}
	var out bytes.Buffer
	if err := run([]string{"help"}, &out); err != nil || !strings.Contains(out.String(), "serve") {
		t.Errorf("help should print usage, got %q (%v)", out.String(), err)
	}
}
