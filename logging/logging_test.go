package logging

import (
	"context"
	"testing"
)

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	logger := NewLogger(Config{Level: "debug", Development: true})
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected stored logger back")
	}
}

func TestNewLoggerBadLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "nonsense"})
	if logger == nil {
		t.Fatal("expected logger despite bad level")
	}
	logger.Infof("level fallback works")
}
