package pins

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInterval(t *testing.T) {
	val, err := parseInterval("250")
	assert.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, val)

	val, err = parseInterval("1s")
	assert.NoError(t, err)
	assert.Equal(t, time.Second, val)

	_, err = parseInterval("soon")
	assert.Error(t, err)
}
