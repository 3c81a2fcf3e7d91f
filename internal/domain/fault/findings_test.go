package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingsFromXML(t *testing.T) {
	t.Parallel()

	findings := Findings([]byte(tabularXML))
	require.Len(t, findings, 2)

	assert.Equal(t, Finding{Severity: "W", Message: "Name is longer than recommended"}, findings[0])
	assert.Equal(t, Finding{Severity: "E", Message: "Data type is missing"}, findings[1])

	assert.True(t, findings[0].IsWarning())
	assert.False(t, findings[0].IsError())
	assert.True(t, findings[1].IsError())
}

func TestFindingsFromJSON(t *testing.T) {
	t.Parallel()

	body := `{"RESULT":[
		{"SEVERITY":"S","SHORT_TEXT":"Check finished"},
		{"SEVERITY":"A","SHORT_TEXT":"Activation aborted"}
	]}`

	findings := Findings([]byte(body))
	require.Len(t, findings, 2)
	assert.Equal(t, "S", findings[0].Severity)
	assert.True(t, findings[1].IsError())
}

func TestFindingsOnUnstructuredBody(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Findings([]byte("plain text")))
	assert.Nil(t, Findings(nil))
	assert.Nil(t, Findings([]byte(`{"message":"no rows here"}`)))
}

func TestFirstError(t *testing.T) {
	t.Parallel()

	findings := []Finding{
		{Severity: "I", Message: "info"},
		{Severity: "W", Message: "warning"},
		{Severity: "E", Message: "first error"},
		{Severity: "X", Message: "second error"},
	}

	f, ok := FirstError(findings)
	require.True(t, ok)
	assert.Equal(t, "first error", f.Message)

	_, ok = FirstError(findings[:2])
	assert.False(t, ok)
}
