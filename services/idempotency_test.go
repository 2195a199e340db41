package services_test

import (
	"testing"

	"PearlDental/services"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionKeys(t *testing.T) {
	key := services.NewSubmissionKey()
	assert.NotEmpty(t, key)
	assert.NotEqual(t, key, services.NewSubmissionKey())

	rotated := services.RotateSubmissionKey(key)
	assert.NotEmpty(t, rotated)
	assert.NotEqual(t, key, rotated)
}

func TestLineKey_DerivedFromBaseAndLine(t *testing.T) {
	assert.Equal(t, "base:l1", services.LineKey("base", "l1"))
	assert.NotEqual(t, services.LineKey("base", "l1"), services.LineKey("base", "l2"))
	assert.NotEqual(t, services.LineKey("a", "l1"), services.LineKey("b", "l1"))
}
