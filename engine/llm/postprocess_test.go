package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostProcess(t *testing.T) {
	t.Run("Should strip a json fence", func(t *testing.T) {
		in := "```json\n{\"next_agent\": \"worker\"}\n```"
		assert.Equal(t, `{"next_agent": "worker"}`, PostProcess(in))
	})

	t.Run("Should strip a bare fence", func(t *testing.T) {
		in := "```\nhello\n```"
		assert.Equal(t, "hello", PostProcess(in))
	})

	t.Run("Should strip a single-line json fence", func(t *testing.T) {
		in := "```json {\"next_agent\": \"FINISH\"}```"
		assert.Equal(t, `{"next_agent": "FINISH"}`, PostProcess(in))
	})

	t.Run("Should trim surrounding whitespace", func(t *testing.T) {
		assert.Equal(t, "plain answer", PostProcess("  plain answer \n"))
	})

	t.Run("Should leave unfenced content untouched", func(t *testing.T) {
		assert.Equal(t, `{"a": 1}`, PostProcess(`{"a": 1}`))
	})

	t.Run("Should keep a first line that is content rather than a language hint", func(t *testing.T) {
		in := "```{\"a\": 1}\n{\"b\": 2}\n```"
		assert.Equal(t, "{\"a\": 1}\n{\"b\": 2}", PostProcess(in))
	})

	t.Run("Should handle the empty string", func(t *testing.T) {
		assert.Equal(t, "", PostProcess(""))
	})
}
