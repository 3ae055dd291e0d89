package headhunter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/hh-screener/internal/models"
	"go.uber.org/zap"
)

const apiNegotiationPath = "/negotiations"

// collectionLabels maps platform collection ids to pipeline labels.
// Unknown ids are kept verbatim.
var collectionLabels = map[string]string{
	"response":            models.CollectionNew,
	"consider":            models.CollectionConsider,
	"interview":           models.CollectionInterview,
	"discard_by_employer": models.CollectionRejected,
}

// CollectionLabel returns the pipeline label of a platform collection id.
func CollectionLabel(id string) string {
	if label, ok := collectionLabels[id]; ok {
		return label
	}
	return id
}

// NegotiationCollection is a review bucket of a vacancy with its own paged URL.
type NegotiationCollection struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Counters struct {
		Total int `json:"total"`
	} `json:"counters"`
}

type collectionsResponse struct {
	Collections []NegotiationCollection `json:"collections"`
}

// Negotiation is a candidate response as listed in a collection.
type Negotiation struct {
	ID        string         `json:"id"`
	State     Named          `json:"state"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Resume    *ResumePayload `json:"resume"`

	// Collection is the label of the bucket the item was found in.
	Collection string `json:"-"`
	// Raw is the item exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Quarantined is an item that did not match the expected payload shape.
type Quarantined struct {
	ExternalID string
	Collection string
	Reason     string
	Raw        json.RawMessage
}

// Applications holds the responses of one vacancy across all collections.
type Applications struct {
	Items    []*Negotiation
	Rejected []Quarantined
}

func (a *Applications) Len() int {
	return len(a.Items)
}

// Collections discovers the collections available for a vacancy.
func (c *Client) Collections(ctx context.Context, vacancyID string) ([]NegotiationCollection, error) {
	q := url.Values{}
	q.Set("vacancy_id", vacancyID)

	var response collectionsResponse
	if err := c.getJSON(ctx, c.APIURL+apiNegotiationPath, q, &response); err != nil {
		return nil, fmt.Errorf("discover collections of vacancy %s: %w", vacancyID, err)
	}

	return response.Collections, nil
}

// ListApplications walks every collection of the vacancy and returns the
// concatenated items tagged with their collection label.
func (c *Client) ListApplications(ctx context.Context, vacancyID string) (*Applications, error) {
	if strings.TrimSpace(vacancyID) == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	collections, err := c.Collections(ctx, vacancyID)
	if err != nil {
		return nil, err
	}

	result := &Applications{}
	for _, collection := range collections {
		if collection.URL == "" {
			c.logger.Debug("collection without url skipped",
				zap.String("vacancy_id", vacancyID),
				zap.String("collection", collection.ID),
			)
			continue
		}

		label := CollectionLabel(collection.ID)
		err := c.walkPages(ctx, collection.URL, nil, func(page *ItemResponse) error {
			for _, item := range page.Items {
				negotiation, reason := decodeNegotiation(item)
				if reason != "" {
					raw, _ := json.Marshal(item)
					result.Rejected = append(result.Rejected, Quarantined{
						ExternalID: fmt.Sprint(item["id"]),
						Collection: label,
						Reason:     reason,
						Raw:        raw,
					})
					continue
				}
				negotiation.Collection = label
				result.Items = append(result.Items, negotiation)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk collection %s of vacancy %s: %w", collection.ID, vacancyID, err)
		}
	}

	c.logger.Debug("got applications from HH.ru",
		zap.String("vacancy_id", vacancyID),
		zap.Int("collections", len(collections)),
		zap.Int("count", len(result.Items)),
		zap.Int("quarantined", len(result.Rejected)),
	)

	return result, nil
}

// decodeNegotiation returns the typed item or the reason it was quarantined.
func decodeNegotiation(item Item) (*Negotiation, string) {
	var negotiation Negotiation
	cfg := &mapstructure.DecoderConfig{
		Result:           &negotiation,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err.Error()
	}
	if err := decoder.Decode(item); err != nil {
		return nil, fmt.Sprintf("decode: %v", err)
	}

	switch {
	case negotiation.ID == "":
		return nil, "missing id"
	case negotiation.Resume == nil:
		return nil, "missing resume"
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Sprintf("encode raw payload: %v", err)
	}
	negotiation.Raw = raw

	return &negotiation, ""
}

// timeLayout is the timestamp format of the API, e.g. 2025-01-01T10:00:00+0300.
const timeLayout = "2006-01-02T15:04:05-0700"

// ParseTime parses an API timestamp, accepting RFC 3339 as well.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Created returns the creation time of the negotiation, or zero when unknown.
func (n *Negotiation) Created() time.Time {
	t, err := ParseTime(n.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
