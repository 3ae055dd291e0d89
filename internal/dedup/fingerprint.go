// Package dedup recognizes candidates who responded to the same vacancy more
// than once with the same resume content.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/spigell/hh-screener/internal/headhunter"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	delimiter       = "|"
	experienceDepth = 2
	skillLimit      = 10
)

// ErrInvalidPayload is returned for payloads that cannot be fingerprinted.
var ErrInvalidPayload = errors.New("invalid candidate payload")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return !field.IsZero()
		}
		return strings.TrimSpace(field.String()) != ""
	})
	return v
}

// Validate rejects payloads without a resume id or title.
func Validate(payload *headhunter.ResumePayload) error {
	if payload == nil {
		return fmt.Errorf("%w: payload is missing", ErrInvalidPayload)
	}

	if err := validate.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: blank %s", ErrInvalidPayload, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return nil
}

// Fingerprint returns a stable hash of the payload content. Skill order and
// incidental whitespace do not change it; the order of the two most recent
// work experience entries does.
func Fingerprint(payload *headhunter.ResumePayload) (string, error) {
	if err := Validate(payload); err != nil {
		return "", err
	}

	fields := []string{
		strings.TrimSpace(payload.ID),
		normalize(payload.FirstName),
		normalize(payload.LastName),
		normalize(payload.MiddleName),
		age(payload.Age),
		primaryContact(payload),
	}

	for i := 0; i < experienceDepth; i++ {
		if i < len(payload.Experience) {
			exp := payload.Experience[i]
			fields = append(fields, normalize(exp.Company), normalize(exp.Position), normalize(exp.Start), normalize(exp.End))
			continue
		}
		fields = append(fields, "", "", "", "")
	}

	fields = append(fields, strings.Join(skills(payload.SkillSet), ","))

	sum := sha256.Sum256([]byte(strings.Join(fields, delimiter)))
	return hex.EncodeToString(sum[:]), nil
}

// ContentHash fingerprints arbitrary content through its JSON encoding.
// Map keys are encoded in sorted order so equal content hashes equally.
func ContentHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// normalize applies NFKC, folds case and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func age(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func primaryContact(payload *headhunter.ResumePayload) string {
	contact, ok := payload.PrimaryContact()
	if !ok {
		return ""
	}

	if contact.Kind == headhunter.ContactPhone {
		return digits(contact.Value)
	}
	return normalize(contact.Value)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// skills returns the normalized, sorted and deduplicated skills, capped at skillLimit.
func skills(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, skill := range raw {
		skill = normalize(skill)
		if skill == "" {
			continue
		}
		if _, ok := seen[skill]; ok {
			continue
		}
		seen[skill] = struct{}{}
		result = append(result, skill)
	}

	sort.Strings(result)
	if len(result) > skillLimit {
		result = result[:skillLimit]
	}
	return result
}
