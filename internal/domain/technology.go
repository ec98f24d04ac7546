package domain

import "time"

type Technology struct {
	ID      int64    `json:"id"`
	Slug    string   `json:"slug" yaml:"slug"`
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
}

type TechnologyMention struct {
	JobID        int64     `json:"jobId"`
	TechnologyID int64     `json:"technologyId"`
	Technology   string    `json:"technology,omitempty"`
	Confidence   int       `json:"confidence"`
	Context      string    `json:"context"`
	CreatedAt    time.Time `json:"createdAt"`
}
