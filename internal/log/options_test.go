package log

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultOptions(t *testing.T) {
	if err := DefaultOptions.Verify(); err != nil {
		t.Error(err)
	}
}

func TestLevel(t *testing.T) {
	opts := DefaultOptions
	opts.Level = "DUMMY"
	if err := opts.Verify(); err != ErrOptionLevel {
		t.Errorf("expected ErrOptionLevel, got %v", err)
	}

	opts.Level = "debug"
	if err := opts.Verify(); err != nil {
		t.Errorf("lowercase level should be accepted: %v", err)
	}
}

func TestFormat(t *testing.T) {
	opts := DefaultOptions
	opts.Format = "xml"
	if err := opts.Verify(); err != ErrOptionFormat {
		t.Errorf("expected ErrOptionFormat, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	tgt := DefaultOptions

	if err := tgt.MergeFrom(Options{Level: "WARN"}); err != nil {
		t.Fatal(err)
	}
	if tgt.Level != "WARN" || tgt.Format != FormatText {
		t.Errorf("unexpected merge result %+v", tgt)
	}

	if err := tgt.MergeFrom(Options{Path: "some-path", Format: FormatJSON}); err != nil {
		t.Fatal(err)
	}
	if tgt.Path != "some-path" || tgt.Level != "WARN" || tgt.Format != FormatJSON {
		t.Errorf("unexpected merge result %+v", tgt)
	}

	if err := tgt.MergeFrom(Options{Level: "LOUD"}); err == nil {
		t.Error("expected merge to fail verification")
	}
}

func TestInitializeWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	if err := Initialize(Options{Level: LevelDebug, Format: FormatJSON, Path: path}); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = Initialize(DefaultOptions) }()

	if !Get().IsLevelEnabled(logrus.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}
}
