package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSession_MissingFileIsEmpty(t *testing.T) {
	s, err := LoadSession(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if s.Token != "" || s.LoggedIn("http://x") {
		t.Errorf("expected empty session, got %+v", s)
	}
}

func TestSession_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	s.BaseURL = "https://localhost:8080"
	s.Username = "alice"
	s.Token = "tok"
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("session mode = %v; want 0600", info.Mode().Perm())
	}

	loaded, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !loaded.LoggedIn("https://localhost:8080") || loaded.Username != "alice" {
		t.Errorf("unexpected session %+v", loaded)
	}
	if loaded.LoggedIn("https://other:8080") {
		t.Errorf("token must not apply to another server")
	}

	if err := loaded.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected session file removed, got %v", err)
	}
}

func TestSession_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	_ = os.WriteFile(path, []byte("{"), 0o600)
	if _, err := LoadSession(path); err == nil {
		t.Errorf("expected decode error")
	}
}
