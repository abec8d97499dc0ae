package sl_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	err := errors.New("something went wrong")
	attr := sl.Err(err)

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("something went wrong"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.Panics(t, func() {
		_ = sl.Err(nil)
	})
}

func TestCorrelation_SkipsEmpty(t *testing.T) {
	attr := sl.Correlation("evt_1", "", "cs_1")

	assert.Equal(t, "correlation", attr.Key)
	group := attr.Value.Group()
	keys := make([]string, 0, len(group))
	for _, a := range group {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"event_id", "session_id"}, keys)
}
