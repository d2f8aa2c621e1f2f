package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	minChoices      = 2
	maxChoices      = 12
	minQuestions    = 1
	maxQuestions    = 50
	minQuestionTime = 5
	maxQuestionTime = 120
	defaultTime     = 20

	kindSingle   = "single"
	kindMultiple = "multiple"
)

// Question is immutable once a quiz is loaded into a game. On the wire and
// on disk the correct answer is a single index for "single" questions and
// an index array for "multiple" questions, both under the "correct" key.
type Question struct {
	Prompt     string
	Answers    []string
	Correct    int
	CorrectSet []int
	Time       int
	Kind       string
	Image      string
}

type questionJSON struct {
	Prompt  string          `json:"question"`
	Answers []string        `json:"answers"`
	Correct json.RawMessage `json:"correct"`
	Time    int             `json:"time,omitempty"`
	Kind    string          `json:"type,omitempty"`
	Image   string          `json:"image,omitempty"`
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var raw questionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	q.Prompt = raw.Prompt
	q.Answers = raw.Answers
	q.Time = raw.Time
	q.Kind = raw.Kind
	q.Image = raw.Image
	q.Correct = 0
	q.CorrectSet = nil

	if len(raw.Correct) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw.Correct, &q.Correct); err == nil {
		return nil
	}

	return json.Unmarshal(raw.Correct, &q.CorrectSet)
}

func (q Question) MarshalJSON() ([]byte, error) {
	correct, err := json.Marshal(wireCorrect(&q))
	if err != nil {
		return nil, err
	}

	return json.Marshal(questionJSON{
		Prompt:  q.Prompt,
		Answers: q.Answers,
		Correct: correct,
		Time:    q.Time,
		Kind:    q.Kind,
		Image:   q.Image,
	})
}

type Quiz struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// correctIndices returns the correct answer set regardless of question kind.
func (q *Question) correctIndices() []int {
	if q.Kind == kindMultiple {
		return q.CorrectSet
	}
	return []int{q.Correct}
}

// sanitizeQuiz normalizes a quiz at ingestion time, so the game core can
// assume well-formed input. Returns an error describing the first problem
// found.
func sanitizeQuiz(quiz *Quiz) error {
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		return errors.New("quiz title must not be empty")
	}

	if len(quiz.Questions) < minQuestions || len(quiz.Questions) > maxQuestions {
		return fmt.Errorf("quiz must contain between %d and %d questions, has %d", minQuestions, maxQuestions, len(quiz.Questions))
	}

	for i := range quiz.Questions {
		q := &quiz.Questions[i]

		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.Prompt == "" {
			return fmt.Errorf("question %d has no prompt", i+1)
		}

		if len(q.Answers) < minChoices || len(q.Answers) > maxChoices {
			return fmt.Errorf("question %d must have between %d and %d answer choices, has %d", i+1, minChoices, maxChoices, len(q.Answers))
		}

		switch q.Kind {
		case "":
			// Default kind is single, unless the correct answer was
			// already given as a set.
			if len(q.CorrectSet) > 0 {
				q.Kind = kindMultiple
			} else {
				q.Kind = kindSingle
			}
		case kindSingle, kindMultiple:
		default:
			return fmt.Errorf("question %d has unknown type %q", i+1, q.Kind)
		}

		switch q.Kind {
		case kindSingle:
			if len(q.CorrectSet) == 1 {
				q.Correct = q.CorrectSet[0]
				q.CorrectSet = nil
			}
			if len(q.CorrectSet) > 0 {
				return fmt.Errorf("question %d is single-choice but lists %d correct answers", i+1, len(q.CorrectSet))
			}
			if q.Correct < 0 || q.Correct >= len(q.Answers) {
				return fmt.Errorf("question %d has out-of-range correct index %d", i+1, q.Correct)
			}
		case kindMultiple:
			if len(q.CorrectSet) == 0 {
				return fmt.Errorf("question %d has no correct answers", i+1)
			}
			seen := make(map[int]bool, len(q.CorrectSet))
			for _, idx := range q.CorrectSet {
				if idx < 0 || idx >= len(q.Answers) {
					return fmt.Errorf("question %d has out-of-range correct index %d", i+1, idx)
				}
				if seen[idx] {
					return fmt.Errorf("question %d lists correct index %d twice", i+1, idx)
				}
				seen[idx] = true
			}
			sort.Ints(q.CorrectSet)
		}

		if q.Time == 0 {
			q.Time = defaultTime
		} else if q.Time < minQuestionTime {
			q.Time = minQuestionTime
		} else if q.Time > maxQuestionTime {
			q.Time = maxQuestionTime
		}
	}

	return nil
}

var errQuizNotFound = errors.New("quiz not found")

// QuizStore keeps quiz definitions as JSON documents in a single directory.
type QuizStore struct {
	mu sync.Mutex
	fs afero.Fs
}

func newQuizStore(fs afero.Fs) (*QuizStore, error) {
	if err := fs.MkdirAll(".", 0o755); err != nil {
		return nil, err
	}
	return &QuizStore{fs: fs}, nil
}

func (qs *QuizStore) filename(id string) string {
	return id + ".json"
}

// loadQuiz reads one quiz by ID. IDs are uuids assigned at save time, so
// anything containing a path separator is rejected outright.
func (qs *QuizStore) loadQuiz(id string) (*Quiz, error) {
	if id == "" || path.Base(id) != id {
		return nil, errQuizNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	data, err := afero.ReadFile(qs.fs, qs.filename(id))
	if err != nil {
		return nil, errQuizNotFound
	}

	quiz := &Quiz{}
	if err := json.Unmarshal(data, quiz); err != nil {
		return nil, fmt.Errorf("quiz %s is corrupt: %w", id, err)
	}
	quiz.ID = id

	return quiz, nil
}

// saveQuiz sanitizes and stores a quiz, assigning an ID if it has none.
func (qs *QuizStore) saveQuiz(quiz *Quiz) error {
	if err := sanitizeQuiz(quiz); err != nil {
		return err
	}

	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	} else if path.Base(quiz.ID) != quiz.ID {
		return errQuizNotFound
	}

	data, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		return err
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	return afero.WriteFile(qs.fs, qs.filename(quiz.ID), data, 0o644)
}

func (qs *QuizStore) deleteQuiz(id string) error {
	if id == "" || path.Base(id) != id {
		return errQuizNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if exists, _ := afero.Exists(qs.fs, qs.filename(id)); !exists {
		return errQuizNotFound
	}

	return qs.fs.Remove(qs.filename(id))
}

// QuizSummary is the listing entry returned by listQuizzes.
type QuizSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Questions int    `json:"questions"`
}

func (qs *QuizStore) listQuizzes() ([]QuizSummary, error) {
	qs.mu.Lock()
	entries, err := afero.ReadDir(qs.fs, ".")
	qs.mu.Unlock()
	if err != nil {
		return nil, err
	}

	summaries := make([]QuizSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		quiz, err := qs.loadQuiz(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, QuizSummary{
			ID:        id,
			Title:     quiz.Title,
			Questions: len(quiz.Questions),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Title < summaries[j].Title
	})

	return summaries, nil
}
