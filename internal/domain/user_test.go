package domain

import (
	"strings"
	"testing"
)

func TestNewUserValidation(t *testing.T) {
	if _, err := NewUser("u1", ""); err != ErrNameEmpty {
		t.Errorf("empty name: %v", err)
	}
	if _, err := NewUser("u1", strings.Repeat("x", MaxDisplayNameLen+1)); err != ErrNameTooLong {
		t.Errorf("long name: %v", err)
	}
	u, err := NewUser("u1", "Sam")
	if err != nil || u.Name != "Sam" || u.ID != "u1" {
		t.Errorf("valid user: %+v, %v", u, err)
	}
}

func TestNewGuestHasReadableName(t *testing.T) {
	g := NewGuest()
	if g.ID == "" {
		t.Error("guest id empty")
	}
	if !strings.HasPrefix(g.Name, "Reader-") {
		t.Errorf("guest name: %q", g.Name)
	}
	if NewGuest().ID == g.ID {
		t.Error("guest ids must be unique")
	}
}
