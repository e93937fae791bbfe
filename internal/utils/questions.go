package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var defaultQuestions = []string{
	"What did you have for breakfast this morning?",
	"Describe your perfect weekend.",
	"What is a smell that reminds you of childhood?",
	"If you could live in any city, which one and why?",
	"What was the last thing that made you laugh out loud?",
	"What is a small habit you are proud of?",
	"Which song have you had stuck in your head lately?",
	"What would you do with an extra hour every day?",
	"Tell us about a time you got completely lost.",
	"What is the most useless talent you have?",
	"What food could you eat every day without getting bored?",
	"Describe your neighbourhood in three sentences.",
}

// QuestionBank hands out filler questions for interrogators that run out of
// time.
type QuestionBank struct {
	mu        sync.Mutex
	rng       *rand.Rand
	questions []string
}

func NewQuestionBank(seed int64, questions []string) *QuestionBank {
	if len(questions) == 0 {
		questions = defaultQuestions
	}
	return &QuestionBank{
		rng:       rand.New(rand.NewSource(seed)),
		questions: append([]string(nil), questions...),
	}
}

func DefaultQuestions() []string {
	return append([]string(nil), defaultQuestions...)
}

func (b *QuestionBank) RandomQuestion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.questions[b.rng.Intn(len(b.questions))]
}

func (b *QuestionBank) Len() int {
	return len(b.questions)
}

// ReadQuestions parses one question per record from the first CSV column.
// Blank and over-long entries are skipped.
func ReadQuestions(r io.Reader, maxLength int) ([]string, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	var questions []string
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse questions: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		q := strings.TrimSpace(record[0])
		if q == "" || (maxLength > 0 && len([]rune(q)) > maxLength) {
			log.Debug().Strs("record", record).Msg("[ReadQuestions] skipping invalid record")
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func ReadQuestionsFile(filePath string, maxLength int) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open questions file %s: %w", filePath, err)
	}
	defer f.Close()

	return ReadQuestions(f, maxLength)
}
