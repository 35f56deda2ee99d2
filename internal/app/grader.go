package app

import (
	"math"
	"sort"
	"strings"

	"classroom-service/internal/domain"
)

// CanonicalID normalizes an identifier to its canonical string form.
// Wire identifiers may arrive as JSON numbers or padded strings; matching
// always happens on the trimmed string representation.
func CanonicalID(id string) string {
	return strings.TrimSpace(id)
}

// GradeSubmission grades a student's answers against a quiz's question set.
// It is a pure function: persistence of the resulting submission and the
// progress recompute are the caller's responsibility.
//
// Rules:
//   - unanswered questions are incorrect, never an error
//   - open-ended questions are never auto-graded; their points stay in the
//     denominator and the result row is flagged for manual review
//   - every other type is exact string equality after normalization
//   - a question's point value defaults to 1 when unset
//   - score is round(earned/total*100); 0 when the quiz has no points
func GradeSubmission(questions []domain.QuizQuestion, answers []domain.Answer) domain.GradingResult {
	given := make(map[string]string, len(answers))
	for _, a := range answers {
		given[CanonicalID(a.QuestionID)] = strings.TrimSpace(a.Value)
	}

	ordered := make([]domain.QuizQuestion, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	result := domain.GradingResult{
		Results: make([]domain.QuestionResult, 0, len(ordered)),
	}
	for _, q := range ordered {
		points := q.Points
		if points <= 0 {
			points = 1
		}
		result.TotalPoints += points

		answer := given[CanonicalID(q.ID)]
		want := ""
		if q.CorrectAnswer != nil {
			want = strings.TrimSpace(*q.CorrectAnswer)
		}

		row := domain.QuestionResult{
			QuestionID:    q.ID,
			Answer:        answer,
			CorrectAnswer: want,
		}
		switch {
		case !q.Type.AutoGradable():
			row.ManualReview = true
		case want != "" && answer == want:
			row.Correct = true
			row.Points = points
			result.EarnedPoints += points
		}
		result.Results = append(result.Results, row)
	}

	if result.TotalPoints > 0 {
		result.Score = int(math.Round(float64(result.EarnedPoints) / float64(result.TotalPoints) * 100))
	}
	return result
}
