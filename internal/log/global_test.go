package log

import (
	"sync"
	"testing"
)

func TestSetDefaultLogger(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	custom := DebugLogger()
	SetDefaultLogger(custom)

	if DefaultLogger() != custom {
		t.Error("DefaultLogger did not return the custom logger")
	}
}

func TestDefaultLoggerLazyInit(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	SetDefaultLogger(nil)

	var wg sync.WaitGroup
	got := make([]*Logger, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = DefaultLogger()
		}(i)
	}
	wg.Wait()

	for i := range got {
		if got[i] == nil || got[i] != got[0] {
			t.Fatal("concurrent callers should share one default logger")
		}
	}
}

func TestOrDefault(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	custom := Discard()
	if OrDefault(custom) != custom {
		t.Error("OrDefault should keep a non-nil logger")
	}

	SetDefaultLogger(custom)
	if OrDefault(nil) != custom {
		t.Error("OrDefault(nil) should return the default logger")
	}
}
