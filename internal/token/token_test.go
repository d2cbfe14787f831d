package token

import (
	"strings"
	"testing"
)

func TestIssueParseRoundTrip(t *testing.T) {
	f := NewFactory([]byte("0123456789abcdef0123456789abcdef"))
	tok, err := f.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	payload, err := f.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if payload.UserID != 42 {
		t.Fatalf("user id = %d", payload.UserID)
	}
}

func TestParseRejectsTamperedPayload(t *testing.T) {
	f := NewFactory([]byte("key-material"))
	tok, err := f.Issue(1)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.SplitN(tok, ".", 2)
	// flip a byte of the encoded payload
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	if _, err := f.Parse(parts[0] + "." + string(payload)); err == nil {
		t.Fatal("tampered payload must not verify")
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	tok, err := NewFactory([]byte("key-one")).Issue(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewFactory([]byte("key-two")).Parse(tok); err == nil {
		t.Fatal("token signed with another key must not verify")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	f := NewFactory([]byte("key"))
	for _, tok := range []string{"", "noseparator", "a.b.c extra", "!!!.???"} {
		if _, err := f.Parse(tok); err == nil {
			t.Fatalf("malformed token %q must not parse", tok)
		}
	}
}
