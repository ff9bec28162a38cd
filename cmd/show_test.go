package cmd

import (
	"strings"
	"testing"

	"github.com/iksnae/codetask-session/testutil"
)

func TestShowCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.backend.SetHistory("alice", testutil.Conversation(6, 1700000000))
	env.mustRun(t, "", "sync", "--yes")

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all messages",
			args: []string{"show", "--raw"},
			want: []string{"Messages: 6", "[1/6]", "[6/6]", "question 0", "answer 2", "**Assistant (OpenAI)**"},
		},
		{
			name:    "limit keeps the latest",
			args:    []string{"show", "--raw", "--limit", "2"},
			want:    []string{"(4 earlier message(s))", "[5/6]", "[6/6]", "question 2"},
			notWant: []string{"[4/6]", "question 1"},
		},
		{
			name:    "since filters older messages",
			args:    []string{"show", "--raw", "--since", "2023-11-14T22:13:24Z"},
			want:    []string{"[5/6]", "[6/6]"},
			notWant: []string{"[4/6]"},
		},
		{
			name: "rendered",
			args: []string{"show"},
			want: []string{"question 0", "answer 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.mustRun(t, "", tt.args...)
			assertContains(t, "show output", res.stdout, tt.want...)
			for _, w := range tt.notWant {
				if strings.Contains(res.stdout, w) {
					t.Errorf("show output unexpectedly contains %q", w)
				}
			}
		})
	}

	if res := env.run(t, "", "show", "--since", "yesterday"); res.err == nil {
		t.Error("show --since yesterday error = nil")
	}
}

func TestShowCommand_Offline(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "", "chat", "hi")

	// Reading the cache needs neither the server nor a token
	env.token = ""
	env.server.Close()
	res := env.mustRun(t, "", "show", "--raw")
	assertContains(t, "show output", res.stdout, "echo: hi")
}

func TestListCommand(t *testing.T) {
	env := newCLIEnv(t)

	res := env.mustRun(t, "", "list")
	assertContains(t, "list output", res.stdout, "No cached sessions")

	env.mustRun(t, "", "chat", "hi")
	env.user = "bob"
	env.mustRun(t, "", "chat", "hello")
	env.mustRun(t, "", "chat", "again")

	res = env.mustRun(t, "", "list")
	assertContains(t, "list output", res.stdout, "Found 2 session(s)", "alice", "bob", "openai")

	env.mustRun(t, "n\n", "list", "--delete", "alice")
	res = env.mustRun(t, "", "list")
	assertContains(t, "list output", res.stdout, "Found 2 session(s)")

	env.mustRun(t, "", "list", "--delete", "alice", "--yes")
	res = env.mustRun(t, "", "list")
	assertContains(t, "list output", res.stdout, "Found 1 session(s)", "bob")
	if strings.Contains(res.stdout, "alice") {
		t.Errorf("deleted session still listed:\n%s", res.stdout)
	}
}
