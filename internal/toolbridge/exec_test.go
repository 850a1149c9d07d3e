package toolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{buf: &buf, max: 5}
	n, err := w.Write([]byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if n != len("hello world") {
		t.Errorf("Write() returned n = %d, want the full input length so callers don't see a short-write error", n)
	}
	if buf.String() != "hello" {
		t.Errorf("buf = %q, want capped at 5 bytes", buf.String())
	}
}

func TestLimitedWriterDropsWritesPastCap(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{buf: &buf, max: 3}
	w.Write([]byte("abc"))
	w.Write([]byte("def"))
	if buf.String() != "abc" {
		t.Errorf("buf = %q, want unchanged once at cap", buf.String())
	}
}

func TestExecExecutorListToolsAdvertisesShellAndDevopsTools(t *testing.T) {
	ex := NewExec(time.Second)
	defs, err := ex.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"shell", "kubectl", "git", "docker", "terraform", "aws", "helm"} {
		if !names[want] {
			t.Errorf("ListTools() missing %q, got %+v", want, defs)
		}
	}
}

func TestExecExecutorRunsDevopsToolAllowedCommand(t *testing.T) {
	ex := NewExec(5 * time.Second)
	args, _ := json.Marshal(devopsArgs{Command: "--version"})
	res, err := ex.Execute(context.Background(), "git", args)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("Execute(git) ok = false, error = %s", res.ErrorText)
	}
}

func TestExecExecutorRejectsUnsafeDevopsCommand(t *testing.T) {
	ex := NewExec(time.Second)
	args, _ := json.Marshal(devopsArgs{Command: "status; rm -rf /"})
	res, err := ex.Execute(context.Background(), "git", args)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Error("expected a shell metacharacter in the devops command to be rejected")
	}
}

func TestExecExecutorRunsAllowedCommand(t *testing.T) {
	ex := NewExec(5 * time.Second)
	args, _ := json.Marshal(shellArgs{Command: "echo", Args: []string{"hello"}})
	res, err := ex.Execute(context.Background(), "shell", args)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("Execute() ok = false, error = %s", res.ErrorText)
	}
	var out shellResult
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", out.Stdout, "hello\n")
	}
}

func TestExecExecutorRejectsUnsafeExecutable(t *testing.T) {
	ex := NewExec(time.Second)
	args, _ := json.Marshal(shellArgs{Command: "echo; rm -rf /"})
	res, err := ex.Execute(context.Background(), "shell", args)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Error("expected a shell metacharacter in the executable to be rejected")
	}
}

func TestExecExecutorRejectsUnknownToolName(t *testing.T) {
	ex := NewExec(time.Second)
	res, err := ex.Execute(context.Background(), "other", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Error("expected unknown tool name to fail")
	}
}

func TestExecExecutorReportsNonZeroExit(t *testing.T) {
	ex := NewExec(5 * time.Second)
	args, _ := json.Marshal(shellArgs{Command: "false"})
	res, err := ex.Execute(context.Background(), "shell", args)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Error("expected a nonzero exit command to report ok=false")
	}
}
