package common

import "testing"

func TestUserAgent(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.2.3"
	if got := UserAgent(); got != "jetta/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}
