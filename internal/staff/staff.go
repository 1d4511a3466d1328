// Package staff manages employees, their credentials and window assignment, and the
// question topics they serve.
package staff

import (
	"context"
	"log"
	"strings"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	employees store.EmployeeStore
	questions store.QuestionStore
}

func NewService(employees store.EmployeeStore, questions store.QuestionStore) *Service {
	return &Service{employees: employees, questions: questions}
}

type CreateEmployeeInput struct {
	Name         string  `json:"name"`
	Position     string  `json:"position"`
	Password     string  `json:"password"`
	Status       string  `json:"status"`
	WindowNumber *int    `json:"window_number"`
	Topics       []int64 `json:"topics"`
	Priority     int     `json:"priority"`
}

func (s *Service) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	return s.employees.ListEmployees(ctx)
}

func (s *Service) CreateEmployee(ctx context.Context, input CreateEmployeeInput) (models.Employee, error) {
	name := strings.TrimSpace(input.Name)
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return models.Employee{}, store.MissingFields(missing...)
	}
	var problems []string
	if input.WindowNumber != nil && *input.WindowNumber <= 0 {
		problems = append(problems, "window_number must be positive")
	}
	for _, topic := range input.Topics {
		if _, ok, err := s.questions.GetQuestion(ctx, topic); err != nil {
			return models.Employee{}, err
		} else if !ok {
			problems = append(problems, "topics contains unknown question")
			break
		}
	}
	if len(problems) > 0 {
		return models.Employee{}, store.Invalid(problems...)
	}
	if _, exists, err := s.employees.GetEmployeeByName(ctx, name); err != nil {
		return models.Employee{}, err
	} else if exists {
		return models.Employee{}, store.Invalid("name is already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.Employee{}, err
	}
	emp, err := s.employees.CreateEmployee(ctx, store.CreateEmployeeInput{
		Name:         name,
		Position:     strings.TrimSpace(input.Position),
		PasswordHash: string(hash),
		Status:       strings.TrimSpace(input.Status),
		WindowNumber: input.WindowNumber,
		Topics:       input.Topics,
		Priority:     input.Priority,
	})
	if err != nil {
		return models.Employee{}, err
	}
	log.Printf("employee created id=%d name=%s", emp.ID, emp.Name)
	return emp, nil
}

// Login checks the password against the stored bcrypt hash.
func (s *Service) Login(ctx context.Context, name, password string) (models.Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		var missing []string
		if name == "" {
			missing = append(missing, "name")
		}
		if password == "" {
			missing = append(missing, "password")
		}
		return models.Employee{}, store.MissingFields(missing...)
	}
	emp, ok, err := s.employees.GetEmployeeByName(ctx, name)
	if err != nil {
		return models.Employee{}, err
	}
	if !ok || emp.PasswordHash == "" {
		return models.Employee{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)); err != nil {
		return models.Employee{}, store.ErrInvalidCredentials
	}
	return emp, nil
}

// AssignWindow moves the employee to window, or clears it when window is nil.
func (s *Service) AssignWindow(ctx context.Context, id int64, window *int) (models.Employee, error) {
	if window != nil && *window <= 0 {
		return models.Employee{}, store.Invalid("window_number must be positive")
	}
	emp, err := s.employees.AssignWindow(ctx, id, window)
	if err != nil {
		return models.Employee{}, err
	}
	log.Printf("employee window assigned id=%d window=%v", id, emp.WindowNumber)
	return emp, nil
}

func (s *Service) ListQuestions(ctx context.Context) ([]models.Question, error) {
	return s.questions.ListQuestions(ctx)
}

func (s *Service) CreateQuestion(ctx context.Context, text string) (models.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Question{}, store.MissingFields("text")
	}
	return s.questions.CreateQuestion(ctx, text)
}

func (s *Service) UpdateQuestion(ctx context.Context, id int64, text string) (models.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Question{}, store.MissingFields("text")
	}
	return s.questions.UpdateQuestion(ctx, id, text)
}

func (s *Service) DeleteQuestion(ctx context.Context, id int64) error {
	if err := s.questions.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	log.Printf("question deleted id=%d", id)
	return nil
}
