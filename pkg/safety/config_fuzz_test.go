package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func FuzzParseConfig(f *testing.F) {
	f.Add([]byte(sampleConfig))
	f.Add([]byte("environment_policies: {}"))

	f.Fuzz(func(t *testing.T, data []byte) {
		config, err := ParseConfig(data)
		if err != nil {
			return
		}

		// whatever parsed must be safe to interrogate
		config.Validate()
		policy, source := config.PolicyFor("fuzz-environment")
		assert.NotEmpty(t, source)
		if source == "restricted" {
			assert.False(t, policy.Enabled, "the restricted fallback must never be enabled")
		}
	})
}
