package service

import (
	"context"
	"math/rand"
	"time"

	"corelms/internal/domain"
)

// FinalExamAssembler samples questions from a module's lesson quizzes into a
// composite exam. The selection is recomputed on every assembly so repeated
// attempts see a fresh mix; it is frozen only inside an active quiz session.
// Nothing is ever persisted for the final quiz's question set.
type FinalExamAssembler struct {
	modules   domain.ModuleRepository
	quizzes   domain.QuizRepository
	perLesson int
	floor     int
	newRng    func() *rand.Rand
}

func NewFinalExamAssembler(modules domain.ModuleRepository, quizzes domain.QuizRepository, perLesson, floor int) *FinalExamAssembler {
	return &FinalExamAssembler{
		modules:   modules,
		quizzes:   quizzes,
		perLesson: perLesson,
		floor:     floor,
		newRng: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// Assemble builds the exam for the module owning finalQuizID. It takes up to
// perLesson questions from each lesson's shuffled current pool, then does
// round-robin passes of one more per lesson until the floor is met or every
// pool is exhausted. A module with no eligible questions fails explicitly;
// an exam must never start with zero questions.
func (a *FinalExamAssembler) Assemble(ctx context.Context, finalQuizID string) ([]*domain.Question, error) {
	module, err := a.modules.GetModuleByFinalQuiz(ctx, finalQuizID)
	if err != nil {
		return nil, err
	}
	if module == nil {
		return nil, domain.NewNotFoundError("no module owns this final quiz")
	}
	lessons, err := a.modules.GetLessonsByModule(ctx, module.ID)
	if err != nil {
		return nil, err
	}

	rng := a.newRng()
	var selected []*domain.Question
	var rests [][]*domain.Question
	for _, lesson := range lessons {
		if lesson.QuizID == "" || lesson.QuizID == finalQuizID {
			continue
		}
		pool, err := a.quizzes.GetQuestionsByQuiz(ctx, lesson.QuizID)
		if err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			continue
		}
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		take := a.perLesson
		if take > len(pool) {
			take = len(pool)
		}
		selected = append(selected, pool[:take]...)
		rests = append(rests, pool[take:])
	}

	// Round-robin top-up toward the floor.
	for len(selected) < a.floor {
		took := false
		for i, rest := range rests {
			if len(rest) == 0 {
				continue
			}
			selected = append(selected, rest[0])
			rests[i] = rest[1:]
			took = true
			if len(selected) >= a.floor {
				break
			}
		}
		if !took {
			break
		}
	}

	if len(selected) == 0 {
		return nil, domain.NewError(domain.ErrNoQuestions, "module has no questions to assemble a final exam", nil).
			WithHint("Regenerate the module's lesson quizzes before opening the final exam.")
	}

	rng.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
	return selected, nil
}
