package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const helloWorld = "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"

func TestStringKnownDigest(t *testing.T) {
	if got := String("Hello, World!"); got != helloWorld {
		t.Fatalf("got %s, want %s", got, helloWorld)
	}
	if String("Hello, World!") != String("Hello, World!") {
		t.Fatal("digest must be stable across calls")
	}
}

func TestEmptyDigest(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := String(""); got != empty {
		t.Fatalf("got %s, want %s", got, empty)
	}
}

func TestDifferentContentDiffers(t *testing.T) {
	if String("a") == String("b") {
		t.Fatal("different content should differ")
	}
}

func TestSourcesAgree(t *testing.T) {
	content := "# Title\n\nSome body text.\n"
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	fromReader, err := Reader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if fromFile != String(content) || fromReader != Bytes([]byte(content)) {
		t.Fatalf("digests disagree: file=%s reader=%s string=%s", fromFile, fromReader, String(content))
	}

	ok, err := Verify(path, String(content))
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
	ok, _ = Verify(path, helloWorld)
	if ok {
		t.Fatal("Verify should fail for a different digest")
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
