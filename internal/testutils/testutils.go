package testutils

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"net/url"
	"sync"
	"testing"
	"time"
)

// AssertValidationError fails the test unless err holds a validator error on fieldPath (yaml names, prefixed by
// the root struct type) for the given validation tag.
func AssertValidationError(t *testing.T, err error, fieldPath string, tag string) {
	t.Helper()
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		t.Errorf("expected validation errors, got: %v", err)
		return
	}
	for _, e := range validationErrors {
		if e.Namespace() == fieldPath && e.Tag() == tag {
			return
		}
	}
	t.Errorf("expected '%v' to contain an error for path=%s and tag=%s", validationErrors, fieldPath, tag)
}

// WaitGroupTimeout waits for wg, or returns an error once timeout elapsed.
func WaitGroupTimeout(wg *sync.WaitGroup, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.Errorf("WaitGroup still waiting after %s", timeout)
	}
}

// Eventually polls condition until it returns true or the timeout expires.
func Eventually(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return condition()
}

func MustParseUrl(str string) *url.URL {
	u, err := url.Parse(str)
	if err != nil {
		panic(err)
	}
	return u
}
