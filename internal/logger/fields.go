package logger

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"

	FieldJobID         = "job_id"
	FieldUserID        = "user_id"
	FieldVacancyID     = "vacancy_id"
	FieldApplicationID = "application_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the fields describing the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the AI provider and model to the logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// ID returns a uuid field, or zap.Skip for the nil uuid.
func ID(key string, id uuid.UUID) zap.Field {
	if id == uuid.Nil {
		return zap.Skip()
	}
	return zap.String(key, id.String())
}

// WithJob attaches the sync job and its owner.
func WithJob(logger *zap.Logger, jobID, userID uuid.UUID) *zap.Logger {
	return WithFields(logger, ID(FieldJobID, jobID), ID(FieldUserID, userID))
}

// WithVacancy attaches the internal vacancy id and, when known, the platform id.
func WithVacancy(logger *zap.Logger, vacancyID uuid.UUID, externalID string) *zap.Logger {
	fields := []zap.Field{ID(FieldVacancyID, vacancyID)}
	fields = append(fields, StringFields(StringField{Key: "external_id", Value: externalID})...)
	return WithFields(logger, fields...)
}
