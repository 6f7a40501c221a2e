package crisis

import "context"

type Resource struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description"`
}

// ResourceDirectory supplies the support resources shown in the safety
// interstitial. It plays no part in scoring.
type ResourceDirectory interface {
	Resources(ctx context.Context, userID uint64) ([]Resource, error)
}

type StaticDirectory []Resource

func (d StaticDirectory) Resources(context.Context, uint64) ([]Resource, error) {
	out := make([]Resource, len(d))
	copy(out, d)
	return out, nil
}

var DefaultResources = StaticDirectory{
	{
		Name:        "988 Suicide & Crisis Lifeline",
		Phone:       "988",
		URL:         "https://988lifeline.org",
		Description: "Free, confidential support 24/7 by call or chat.",
	},
	{
		Name:        "Crisis Text Line",
		Text:        "Text HOME to 741741",
		URL:         "https://www.crisistextline.org",
		Description: "Text with a trained crisis counselor.",
	},
	{
		Name:        "Find a Helpline",
		URL:         "https://findahelpline.com",
		Description: "Helplines outside the United States.",
	},
}
