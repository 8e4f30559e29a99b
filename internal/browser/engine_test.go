package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("%w: waiting for selector", ErrTimeout)))
	assert.True(t, IsTimeout(fmt.Errorf("goto: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(errors.New("net::ERR_ABORTED")))
	assert.False(t, IsTimeout(nil))
}

func TestWrapPlaywrightErr(t *testing.T) {
	assert.NoError(t, wrapPlaywrightErr(nil))

	plain := errors.New("target closed")
	assert.Same(t, plain, wrapPlaywrightErr(plain))
}

func TestMsOpt(t *testing.T) {
	assert.Nil(t, msOpt(0))
	if v := msOpt(1500 * time.Millisecond); assert.NotNil(t, v) {
		assert.Equal(t, 1500.0, *v)
	}
}
