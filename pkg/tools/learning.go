package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type topicStats struct {
	Name             string  `json:"name"`
	CompletionRate   float64 `json:"completionRate"`
	AverageScore     float64 `json:"averageScore"`
	TimeSpentMinutes int     `json:"timeSpentMinutes"`
	Learners         int     `json:"learners"`
}

type courseStats struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Topics []topicStats `json:"topics"`
}

type learningDataset struct {
	Courses []courseStats `json:"courses"`
}

var learningMetrics = []string{"completionRate", "averageScore", "timeSpentMinutes", "learners"}

func (t *topicStats) metric(name string) string {
	switch name {
	case "completionRate":
		return fmt.Sprintf("%.0f%%", t.CompletionRate*100)
	case "averageScore":
		return fmt.Sprintf("%.1f", t.AverageScore)
	case "timeSpentMinutes":
		return fmt.Sprintf("%d", t.TimeSpentMinutes)
	case "learners":
		return fmt.Sprintf("%d", t.Learners)
	}
	panic("unknown metric " + name)
}

// LearningData answers questions about the learning-analytics dataset.
type LearningData struct {
	dataset learningDataset
}

func NewLearningData(raw []byte) (*LearningData, error) {
	var dataset learningDataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse learning dataset: %w", err)
	}
	return &LearningData{dataset: dataset}, nil
}

func (*LearningData) Name() string { return "fetch_learning_data" }

func (*LearningData) Description() string {
	return "Fetch learning analytics for a course or topic (args: course, topic, metric)"
}

func matches(query string, candidates ...string) bool {
	for _, candidate := range candidates {
		if strings.EqualFold(query, candidate) {
			return true
		}
	}
	return false
}

func (l *LearningData) Call(_ context.Context, args Args) (string, error) {
	course, _ := args.Get("course")
	topic, _ := args.Get("topic")
	if course == "" && topic == "" {
		return "", fmt.Errorf("missing argument course or topic")
	}

	metrics := learningMetrics
	if metric, ok := args.Get("metric"); ok && metric != "" {
		found := false
		for _, m := range learningMetrics {
			if strings.EqualFold(m, metric) {
				metrics = []string{m}
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("unknown metric %q", metric)
		}
	}

	var sb strings.Builder
	for _, c := range l.dataset.Courses {
		if course != "" && !matches(course, c.ID, c.Title) {
			continue
		}
		for i := range c.Topics {
			t := &c.Topics[i]
			if topic != "" && !matches(topic, t.Name) {
				continue
			}
			fmt.Fprintf(&sb, "%s / %s:", c.Title, t.Name)
			for _, m := range metrics {
				fmt.Fprintf(&sb, " %s=%s", m, t.metric(m))
			}
			sb.WriteByte('\n')
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no learning data for course %q topic %q", course, topic)
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}
