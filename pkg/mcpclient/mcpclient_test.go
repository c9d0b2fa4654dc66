package mcpclient

import (
	"bufio"
	"path/filepath"
	"strings"
	"testing"

	"loopctl/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

func TestReadLineHandlesOversizedFrame(t *testing.T) {
	big := strings.Repeat("x", 20*1024)
	reader := bufio.NewReaderSize(strings.NewReader(big+"\n"), 1024)

	c := &Client{log: testLogger(t)}
	line, err := c.readLine(reader)
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if len(line) != len(big)+1 {
		t.Fatalf("got %d bytes, want %d", len(line), len(big)+1)
	}
}

func TestReadLineOrdinaryFrame(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("hello\n"))
	c := &Client{log: testLogger(t)}
	line, err := c.readLine(reader)
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if string(line) != "hello\n" {
		t.Fatalf("got %q", line)
	}
}
