package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kailas-cloud/knnsearch/internal/app"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"products.jsonl"},
		{"a", "b", "c", "d", "e", "f", "g"},
		{"-unknown-flag", "a", "b"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != app.ExitFatal {
			t.Errorf("%v: exit = %d, want %d", args, code, app.ExitFatal)
		}
		if !strings.Contains(stderr.String(), "Usage: indexer") {
			t.Errorf("%v: stderr = %q", args, stderr.String())
		}
		if stdout.Len() != 0 {
			t.Errorf("%v: stdout should stay empty, got %q", args, stdout.String())
		}
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-version"}, &stdout, &stderr); code != app.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "indexer dev") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_BadPort(t *testing.T) {
	t.Setenv("ENV", "local")
	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", "../../config/local.yaml", "data.jsonl", "products", "localhost", "nope"}, &stdout, &stderr)
	if code != app.ExitFatal {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), `invalid port "nope"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
}
