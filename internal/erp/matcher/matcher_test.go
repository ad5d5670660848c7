// internal/erp/matcher/matcher_test.go
package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

func storedQuestions() *QuestionMap {
	return NewQuestionMap([]schemas.SecurityQuestion{
		{Question: "What is your favourite food?", Answer: "biryani", ID: "q1"},
		{Question: "Name of your first school?", Answer: "DPS", ID: "q2"},
		{Question: "In which city were you born?", Answer: "Kolkata", ID: "q3"},
	})
}

func TestMatch_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"verbatim", "What is your favourite food?", "biryani"},
		{"case and punctuation insensitive", "WHAT IS YOUR FAVOURITE FOOD", "biryani"},
		{"stored contained in live", "Name of your first school (primary)?", "DPS"},
		{"live contained in stored", "first school", "DPS"},
		{"keyword overlap", "Which city were you born in, originally?", "Kolkata"},
	}

	m := storedQuestions()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.question, m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_ExactBeatsEarlierContainment(t *testing.T) {
	m := NewQuestionMap([]schemas.SecurityQuestion{
		{Question: "pet", Answer: "contained"},
		{Question: "Your pet?", Answer: "exact"},
	})
	got, err := Match("your pet", m)
	require.NoError(t, err)
	assert.Equal(t, "exact", got)
}

func TestMatch_Synonym(t *testing.T) {
	m := NewQuestionMap([]schemas.SecurityQuestion{
		{Question: "Favourite colour of childhood?", Answer: "blue"},
	})
	got, err := Match("What color do you like?", m)
	require.NoError(t, err)
	assert.Equal(t, "blue", got)
}

func TestMatch_NoMatch(t *testing.T) {
	_, err := Match("What is your pet's name?", storedQuestions())
	require.Error(t, err)

	assert.Equal(t, schemas.KindNoMatchingSecurityAnswer, schemas.KindOf(err))
	assert.Equal(t, schemas.CategorySecurityQuestion, schemas.KindOf(err).Category())
	assert.Contains(t, err.Error(), "What is your pet's name?")
	assert.Contains(t, err.Error(), "Name of your first school?")
	assert.Contains(t, err.Error(), "In which city were you born?")
}

func TestMatch_NilAndEmptyMap(t *testing.T) {
	_, err := Match("anything", nil)
	assert.True(t, schemas.IsKind(err, schemas.KindNoMatchingSecurityAnswer))

	_, err = Match("", NewQuestionMap(nil))
	assert.True(t, schemas.IsKind(err, schemas.KindNoMatchingSecurityAnswer))
}

func TestNewQuestionMap_CollisionsAndGaps(t *testing.T) {
	m := NewQuestionMap([]schemas.SecurityQuestion{
		{Question: "Pet name?", Answer: "first"},
		{Question: "pet NAME", Answer: "second"},
		{Question: "", Answer: "orphan"},
		{Question: "No answer", Answer: ""},
	})
	require.Equal(t, 1, m.Len())
	assert.Equal(t, []string{"Pet name?"}, m.Questions())

	got, err := Match("PET-NAME", m)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestKeywords(t *testing.T) {
	got := Keywords("What was the name of your FIRST pet's first toy?")
	want := []string{"name", "first", "pet", "toy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "whatisyourpetsname", Normalize("What is your pet's name?"))
	assert.Equal(t, "", Normalize(" ?! "))
}
