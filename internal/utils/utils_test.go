package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestGenerateRoomCode(t *testing.T) {
	for range 100 {
		code, err := GenerateRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, RoomCodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(roomCodeAlphabet, c), "unexpected %q", c)
		}
	}
}

func TestNewSeed(t *testing.T) {
	a, err := NewSeed()
	require.NoError(t, err)
	b, err := NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestReadQuestions(t *testing.T) {
	input := "What is your favourite colour?,easy\n\n\"Where, exactly, did you grow up?\"\n   \n" +
		strings.Repeat("x", 20) + "\n"

	questions, err := ReadQuestions(strings.NewReader(input), 15+20)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"What is your favourite colour?",
		"Where, exactly, did you grow up?",
		strings.Repeat("x", 20),
	}, questions)

	questions, err = ReadQuestions(strings.NewReader(input), 10)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestReadQuestionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.csv")
	require.NoError(t, os.WriteFile(path, []byte("One?\nTwo?\n"), 0o600))

	questions, err := ReadQuestionsFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"One?", "Two?"}, questions)

	_, err = ReadQuestionsFile(filepath.Join(t.TempDir(), "missing.csv"), 0)
	assert.Error(t, err)
}

func TestQuestionBank(t *testing.T) {
	bank := NewQuestionBank(1, []string{"only one?"})
	assert.Equal(t, "only one?", bank.RandomQuestion())

	fallback := NewQuestionBank(1, nil)
	assert.Equal(t, len(DefaultQuestions()), fallback.Len())
	assert.Contains(t, DefaultQuestions(), fallback.RandomQuestion())
}
