package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestValidateFragment(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"ListOfObjects", `[{"major_section":"Credit","summary":"min FICO 620"}]`, true},
		{"EmptyList", `[]`, true},
		{"SectionMap", `{"Credit":{"FICO":"620"}}`, true},
		{"ScalarList", `[1, 2, 3]`, false},
		{"StringList", `["not", "rows"]`, false},
		{"MixedList", `[{"summary":"x"}, "y"]`, false},
		{"EmptyObjectInList", `[{}]`, false},
		{"ErrorEnvelope", `{"error":{"message":"The model is overloaded","code":503}}`, false},
		{"ErrorsEnvelope", `{"errors":[{"message":"bad request"}]}`, false},
		{"EmptyObject", `{}`, false},
		{"Scalar", `"just text"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFragment(decode(t, tt.raw))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "response does not match schema")
		})
	}
}

func TestRow_Title(t *testing.T) {
	assert.Equal(t, "Credit Score", Row{MajorSection: "Credit Score"}.Title())
	assert.Equal(t, "Income - Self Employed", Row{MajorSection: "Income", Subsection: "Self Employed"}.Title())
	assert.Equal(t, "Assets", Row{Subsection: " Assets "}.Title())
}
