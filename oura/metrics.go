package oura

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/roessland/wearabledump/dump"
)

// maxPages bounds pagination in case the API keeps returning a next_token
const maxPages = 50

type collectionPage struct {
	Data      []any   `json:"data"`
	NextToken *string `json:"next_token"`
}

// Metrics returns the Oura metric set in download order
func Metrics() []dump.Metric[*Session] {
	return []dump.Metric[*Session]{
		{Name: "personal_info", Fetch: func(ctx context.Context, s *Session, _ time.Time) (any, error) {
			return s.getObject(ctx, "personal_info")
		}},
		dailyDocument("daily_activity", "daily_activity"),
		dailyDocument("daily_readiness", "daily_readiness"),
		dailyDocument("daily_sleep", "daily_sleep"),
		dailyList("sleep", "sleep"),
		{Name: "heart_rate", List: true, Fetch: fetchHeartRate},
		dailyDocument("daily_stress", "daily_stress"),
		dailyList("workouts", "workout"),
		dailyList("sessions", "session"),
		dailyList("tags", "enhanced_tag"),
		{Name: "ring_configuration", List: true, Fetch: func(ctx context.Context, s *Session, _ time.Time) (any, error) {
			return s.getCollection(ctx, "ring_configuration", nil)
		}},
	}
}

// dateQuery selects [day, day+1) since some collections treat end_date as
// exclusive
func dateQuery(day time.Time) url.Values {
	return url.Values{
		"start_date": {dump.FormatDate(day)},
		"end_date":   {dump.FormatDate(day.AddDate(0, 0, 1))},
	}
}

// dailyDocument fetches a collection with one document per day and keeps
// the document of day itself
func dailyDocument(name, collection string) dump.Metric[*Session] {
	return dump.Metric[*Session]{
		Name: name,
		Fetch: func(ctx context.Context, s *Session, day time.Time) (any, error) {
			docs, err := s.getCollection(ctx, collection, dateQuery(day))
			if err != nil {
				return nil, err
			}
			docs = onDay(docs, day)
			if len(docs) == 0 {
				return nil, nil
			}
			return docs[0], nil
		},
	}
}

// dailyList fetches every document of a collection that belongs to day
func dailyList(name, collection string) dump.Metric[*Session] {
	return dump.Metric[*Session]{
		Name: name,
		List: true,
		Fetch: func(ctx context.Context, s *Session, day time.Time) (any, error) {
			docs, err := s.getCollection(ctx, collection, dateQuery(day))
			if err != nil {
				return nil, err
			}
			return onDay(docs, day), nil
		},
	}
}

func fetchHeartRate(ctx context.Context, s *Session, day time.Time) (any, error) {
	start := dump.Midnight(day)
	return s.getCollection(ctx, "heartrate", url.Values{
		"start_datetime": {start.Format(time.RFC3339)},
		"end_datetime":   {start.AddDate(0, 0, 1).Format(time.RFC3339)},
	})
}

// onDay keeps documents whose "day" field is day; documents without one
// are kept
func onDay(docs []any, day time.Time) []any {
	want := dump.FormatDate(day)
	kept := make([]any, 0, len(docs))
	for _, doc := range docs {
		m, ok := doc.(map[string]any)
		if !ok {
			kept = append(kept, doc)
			continue
		}
		if d, ok := m["day"].(string); ok && d != want {
			continue
		}
		kept = append(kept, doc)
	}
	return kept
}

func (s *Session) getObject(ctx context.Context, path string) (any, error) {
	var out any
	if err := s.api.GetJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getCollection follows next_token until every page is read
func (s *Session) getCollection(ctx context.Context, path string, query url.Values) ([]any, error) {
	all := []any{}
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}

	for page := 0; page < maxPages; page++ {
		var resp collectionPage
		if err := s.api.GetJSON(ctx, path, q, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		if resp.NextToken == nil || *resp.NextToken == "" {
			return all, nil
		}
		q.Set("next_token", *resp.NextToken)
	}
	return nil, fmt.Errorf("%s: more than %d pages", path, maxPages)
}
