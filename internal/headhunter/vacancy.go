package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

type Vacancies struct {
	Items []*Vacancy
}

type Vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	Salary *struct {
		From     *int   `json:"from,omitempty"`
		To       *int   `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
		Gross    bool   `json:"gross,omitempty"`
	} `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employer,omitempty"`
	Description string `json:"description,omitempty"`
	KeySkills   []struct {
		Name string `json:"name,omitempty"`
	} `json:"key_skills,omitempty"`
	Archived     bool   `json:"archived,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	// Counters is filled on employer listings only.
	Counters *struct {
		Responses       int `json:"responses,omitempty"`
		UnreadResponses int `json:"unread_responses,omitempty"`
	} `json:"counters,omitempty"`
}

// Skills returns the key skill names in API order.
func (va *Vacancy) Skills() []string {
	skills := make([]string, 0, len(va.KeySkills))
	for _, skill := range va.KeySkills {
		if name := strings.TrimSpace(skill.Name); name != "" {
			skills = append(skills, name)
		}
	}
	return skills
}

// ListVacancies returns every active vacancy of the employer owning the token.
func (c *Client) ListVacancies(ctx context.Context) (*Vacancies, error) {
	employerID, err := c.EmployerID(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/employers/%s/vacancies/active", url.PathEscape(employerID))

	items, err := c.GetItems(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list vacancies: %w", err)
	}

	var vacancies []*Vacancy
	cfg := &mapstructure.DecoderConfig{
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("%w: decode vacancies: %v", ErrMalformedPayload, err)
	}

	c.logger.Debug("got vacancies from HH.ru", zap.String("employer_id", employerID), zap.Int("count", len(vacancies)))

	return &Vacancies{
		Items: vacancies,
	}, nil
}

// GetVacancy returns full vacancy details including description and key skills.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	var vacancy Vacancy
	if err := c.getJSON(ctx, fmt.Sprintf("%s/vacancies/%s", c.APIURL, url.PathEscape(id)), nil, &vacancy); err != nil {
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}

	return &vacancy, nil
}

func (v *Vacancies) Len() int {
	return len(v.Items)
}

func (v *Vacancies) FindByID(id string) *Vacancy {
	for _, vacancy := range v.Items {
		if vacancy.ID == id {
			return vacancy
		}
	}
	return nil
}
