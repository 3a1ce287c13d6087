package validation

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Role     string `json:"role" binding:"required,role"`
	Password string `json:"password" binding:"required,password"`
	Start    string `json:"start_time" binding:"omitempty,clock"`
	Scenario string `json:"scenario" binding:"omitempty,scenario"`
}

func TestCustomTags(t *testing.T) {
	require.NoError(t, Setup())

	tests := []struct {
		name  string
		in    sample
		valid bool
		field string
	}{
		{"valid", sample{Role: "vorstand", Password: "Geheim123", Start: "18:30", Scenario: "eintritt"}, true, ""},
		{"unknown role", sample{Role: "chef", Password: "Geheim123"}, false, "role"},
		{"weak password", sample{Role: "admin", Password: "geheim"}, false, "password"},
		{"bad clock", sample{Role: "admin", Password: "Geheim123", Start: "25:00"}, false, "start_time"},
		{"bad scenario", sample{Role: "admin", Password: "Geheim123", Scenario: "umzug"}, false, "scenario"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.in)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, Message(err), tt.field)
		})
	}
}

func TestSetupIdempotent(t *testing.T) {
	require.NoError(t, Setup())
	require.NoError(t, Setup())
}
