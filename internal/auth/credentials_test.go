package auth

import (
	"os"
	"testing"

	"github.com/vellum-proxy/vellum/internal/domain"
)

func TestCredentials_YAMLEntries(t *testing.T) {
	c, err := NewCredentials(domain.AuthSource{
		YAMLEntries: []domain.CredentialEntry{{Username: "alice", Password: "secret"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Authenticate("alice", "secret") {
		t.Error("expected alice/secret to authenticate")
	}
	if c.Authenticate("alice", "wrong") {
		t.Error("expected wrong password to fail")
	}
	if !c.UserExists("alice") {
		t.Error("expected alice to exist")
	}
	if c.UserExists("bob") {
		t.Error("expected bob to not exist")
	}
}

func TestCredentials_EnvVar(t *testing.T) {
	os.Setenv("TEST_VELLUM_CREDS", "u1:p1,u2:p2")
	defer os.Unsetenv("TEST_VELLUM_CREDS")

	c, err := NewCredentials(domain.AuthSource{EnvVar: "TEST_VELLUM_CREDS"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Authenticate("u1", "p1") || !c.Authenticate("u2", "p2") {
		t.Error("expected both env credentials to authenticate")
	}
}

func TestCredentials_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/alice", []byte("secret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir+"/.hidden", []byte("ignored"), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := NewCredentials(domain.AuthSource{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Authenticate("alice", "secret") {
		t.Error("expected alice/secret from directory to authenticate")
	}
	if c.UserExists(".hidden") {
		t.Error("expected dotfile to be ignored")
	}
}

func TestCredentials_Reload(t *testing.T) {
	c, err := NewCredentials(domain.AuthSource{YAMLEntries: []domain.CredentialEntry{{Username: "a", Password: "1"}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(domain.AuthSource{YAMLEntries: []domain.CredentialEntry{{Username: "b", Password: "2"}}}); err != nil {
		t.Fatal(err)
	}
	if c.UserExists("a") {
		t.Error("expected old user to be gone after reload")
	}
	if !c.Authenticate("b", "2") {
		t.Error("expected new user to authenticate after reload")
	}
}
