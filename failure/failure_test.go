package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("connection refused")

	tr := fmt.Errorf("topic: %w", &TransportError{Op: "text generation", Err: cause})
	assert.True(t, IsTransport(tr))
	assert.False(t, IsResponseFormat(tr))
	assert.ErrorIs(t, tr, cause)
	assert.Contains(t, tr.Error(), "text generation error: connection refused")

	rf := &ResponseFormatError{Op: "image generation", Detail: "no image url in response"}
	assert.True(t, IsResponseFormat(rf))
	assert.Equal(t, "malformed response for image generation: no image url in response", rf.Error())

	assert.True(t, IsConfig(&ConfigError{Msg: "OpenAI API key is not set."}))
	assert.Equal(t, "OpenAI API key is not set.", (&ConfigError{Msg: "OpenAI API key is not set."}).Error())
}

func TestMediaError(t *testing.T) {
	err := fmt.Errorf("attach: %w", Media(StepUpload, "upload rejected", errors.New("413")))
	step, ok := MediaStepOf(err)
	assert.True(t, ok)
	assert.Equal(t, StepUpload, step)
	assert.Contains(t, err.Error(), "upload rejected: 413")

	assert.Equal(t, "boom", Media(StepDownload, "", errors.New("boom")).Error())
	assert.Equal(t, "no id", Media(StepAttach, "no id", nil).Error())

	_, ok = MediaStepOf(errors.New("plain"))
	assert.False(t, ok)
}
