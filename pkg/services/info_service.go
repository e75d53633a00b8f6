package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
)

// InfoService serves curated platform knowledge to the assistant. The
// content is static: it describes what the platform is and how it works,
// not live data.
type InfoService interface {
	// GetTopic returns the content for a topic, or ErrNotFound with the
	// available topic list so the model can retry.
	GetTopic(topic string) (string, error)
	Topics() []string
}

type infoService struct {
	topics map[string]string
}

// NewInfoService creates the curated platform information catalog.
func NewInfoService() InfoService {
	return &infoService{topics: platformTopics}
}

var _ InfoService = (*infoService)(nil)

func (s *infoService) GetTopic(topic string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(topic))
	if content, ok := s.topics[key]; ok {
		return content, nil
	}
	return "", fmt.Errorf("%w: unknown topic %q, available topics: %s",
		apperrors.ErrNotFound, topic, strings.Join(s.Topics(), ", "))
}

func (s *infoService) Topics() []string {
	keys := make([]string, 0, len(s.topics))
	for k := range s.topics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var platformTopics = map[string]string{
	"about": "DuraEco is a community waste reporting platform for Timor-Leste. " +
		"Citizens photograph waste sites and submit geotagged reports from their phones. " +
		"Each photo is analyzed automatically to classify the waste, estimate its severity, " +
		"and prioritize cleanup. Nearby reports are clustered into hotspots so municipal " +
		"teams can target the worst areas first.",

	"reporting": "To submit a report, a citizen provides their location and a photo of the " +
		"waste, optionally with a short note. Reports without a photo are recorded but not " +
		"analyzed. After submission the photo is reviewed automatically: if it shows waste, " +
		"the report receives a waste type, severity score from 1 to 10, and a priority level. " +
		"Photos that turn out not to show waste are marked as such and kept for transparency.",

	"hotspots": "A hotspot forms when three or more analyzed reports fall within 500 meters " +
		"of each other. Hotspots track the number of member reports, the average severity, " +
		"and when the area was first and last reported. When reports are removed and a " +
		"hotspot drops below three members, it is dissolved.",

	"severity": "Severity scores run from 1 (minor litter) to 10 (large-scale or hazardous " +
		"dumping). Priority levels are low, medium, high, and critical. Both are produced by " +
		"the automated image analysis and drive cleanup scheduling.",

	"data": "The assistant can query reports, analysis results, waste types, hotspots, and " +
		"the hotspot membership table. Queries are read-only. Personal data such as reporter " +
		"identities is not accessible.",
}
