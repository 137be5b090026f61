package quranapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

// HighlightClient stores highlights in the remote highlight API
type HighlightClient struct {
	client *Client
}

func NewHighlightClient(baseURL, apiKey string, opts ...Option) *HighlightClient {
	return &HighlightClient{client: NewClient(baseURL, apiKey, opts...)}
}

// highlightRequest omits word bounds entirely for whole-ayah highlights
type highlightRequest struct {
	Surah      int    `json:"surah"`
	AyahStart  int    `json:"ayahStart"`
	AyahEnd    int    `json:"ayahEnd"`
	WordStart  *int   `json:"wordStart,omitempty"`
	WordEnd    *int   `json:"wordEnd,omitempty"`
	Color      string `json:"color"`
	Category   string `json:"category"`
	PageNumber int    `json:"pageNumber"`
}

type highlightResponse struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"studentId"`
	Surah       int     `json:"surah"`
	AyahStart   int     `json:"ayahStart"`
	AyahEnd     int     `json:"ayahEnd"`
	WordStart   *int    `json:"wordStart"`
	WordEnd     *int    `json:"wordEnd"`
	Color       string  `json:"color"`
	Category    string  `json:"category"`
	PageNumber  int     `json:"pageNumber"`
	CompletedAt *string `json:"completedAt"`
	CreatedAt   string  `json:"createdAt"`
}

// CreateHighlight creates a highlight and returns its ID
func (c *HighlightClient) CreateHighlight(ctx context.Context, h domain.NewHighlight) (string, error) {
	req := highlightRequest{
		Surah:      h.Surah,
		AyahStart:  h.AyahStart,
		AyahEnd:    h.AyahEnd,
		WordStart:  h.WordStart,
		WordEnd:    h.WordEnd,
		Color:      h.Color,
		Category:   string(h.Category),
		PageNumber: h.PageNumber,
	}

	var result struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/students/%s/highlights", url.PathEscape(h.StudentID))
	if err := c.client.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return "", fmt.Errorf("create highlight: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("create highlight: empty id in response")
	}
	return result.ID, nil
}

// DeleteHighlight deletes a highlight by ID
func (c *HighlightClient) DeleteHighlight(ctx context.Context, id string) error {
	path := "/highlights/" + url.PathEscape(id)
	if err := c.client.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("delete highlight %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("delete highlight %s: %w", id, err)
	}
	return nil
}

// ListHighlights lists every highlight of a student
func (c *HighlightClient) ListHighlights(ctx context.Context, studentID string) ([]domain.Highlight, error) {
	var result struct {
		Items []highlightResponse `json:"items"`
	}
	path := fmt.Sprintf("/students/%s/highlights", url.PathEscape(studentID))
	if err := c.client.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}

	highlights := make([]domain.Highlight, 0, len(result.Items))
	for _, item := range result.Items {
		h, err := mapHighlight(item, studentID)
		if err != nil {
			return nil, fmt.Errorf("list highlights: %w", err)
		}
		highlights = append(highlights, h)
	}
	return highlights, nil
}

// CompleteHighlights marks highlights as completed
func (c *HighlightClient) CompleteHighlights(ctx context.Context, ids []string, at time.Time) error {
	req := struct {
		IDs         []string `json:"ids"`
		CompletedAt string   `json:"completedAt"`
	}{IDs: ids, CompletedAt: at.UTC().Format(time.RFC3339)}

	if err := c.client.do(ctx, http.MethodPost, "/highlights/complete", req, nil); err != nil {
		return fmt.Errorf("complete highlights: %w", err)
	}
	return nil
}

func mapHighlight(r highlightResponse, studentID string) (domain.Highlight, error) {
	h := domain.Highlight{
		ID:         r.ID,
		StudentID:  r.StudentID,
		Surah:      r.Surah,
		AyahStart:  r.AyahStart,
		AyahEnd:    r.AyahEnd,
		WordStart:  r.WordStart,
		WordEnd:    r.WordEnd,
		Category:   domain.Category(r.Category),
		Color:      r.Color,
		PageNumber: r.PageNumber,
	}
	if h.StudentID == "" {
		h.StudentID = studentID
	}
	if (h.WordStart == nil) != (h.WordEnd == nil) {
		return h, fmt.Errorf("highlight %s: half-open word range", r.ID)
	}

	if r.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return h, fmt.Errorf("highlight %s: parse createdAt: %w", r.ID, err)
		}
		h.CreatedAt = t
	}
	if r.CompletedAt != nil && *r.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339, *r.CompletedAt)
		if err != nil {
			return h, fmt.Errorf("highlight %s: parse completedAt: %w", r.ID, err)
		}
		h.CompletedAt = &t
	}
	return h, nil
}
