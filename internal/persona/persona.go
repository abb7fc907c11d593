// Package persona holds the synthetic reader profiles that role-play
// feedback, and renders them into prompt cards.
package persona

import (
	"fmt"
	"strings"
	"time"
)

// Persona is a synthetic reader. Only the name, city, mini description and
// biography reach the prompt; the other fields are carried for the client.
type Persona struct {
	ID              string   `json:"id,omitempty" yaml:"id"`
	FirstName       string   `json:"first_name" yaml:"first_name"`
	LastName        string   `json:"last_name" yaml:"last_name"`
	City            string   `json:"city" yaml:"city"`
	MiniDescription string   `json:"mini_description" yaml:"mini_description"`
	Biography       string   `json:"biography,omitempty" yaml:"biography"`
	Bio             string   `json:"bio,omitempty" yaml:"bio"`
	Age             int      `json:"age,omitempty" yaml:"age"`
	Gender          string   `json:"gender,omitempty" yaml:"gender"`
	Country         string   `json:"country,omitempty" yaml:"country"`
	Profession      string   `json:"profession,omitempty" yaml:"profession"`
	SalaryEUR       int      `json:"salary_eur,omitempty" yaml:"salary_eur"`
	Values          []string `json:"values,omitempty" yaml:"values"`
	Lifestyle       string   `json:"lifestyle,omitempty" yaml:"lifestyle"`
}

// Population is a saved set of personas.
type Population struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Personas  []Persona `json:"personas"`
	CreatedAt time.Time `json:"createdAt"`
}

const placeholder = "n/a"

// DisplayName is "First Last", falling back to the id and then to a fixed
// label so every persona can author comments.
func (p Persona) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	return "Anonymous reader"
}

// Story prefers the long biography field and falls back to the generator's bio.
func (p Persona) Story() string {
	if s := strings.TrimSpace(p.Biography); s != "" {
		return s
	}
	return strings.TrimSpace(p.Bio)
}

// Default is the neutral reader used when a request names no persona.
func Default() Persona {
	return Persona{
		ID:              "default-neutral",
		FirstName:       "Alex",
		LastName:        "Martin",
		City:            "Paris",
		MiniDescription: "Neutral, curious reader",
		Biography:       "Alex likes to learn and gives honest feedback, focusing on clarity and impact.",
	}
}

// Card renders the persona block sent to the model. Missing fields render as
// a placeholder.
func Card(p Persona) string {
	var b strings.Builder
	b.WriteString("PERSONA\n")
	fmt.Fprintf(&b, "Name: %s\n", orPlaceholder(strings.TrimSpace(p.FirstName+" "+p.LastName)))
	fmt.Fprintf(&b, "City: %s\n", orPlaceholder(p.City))
	fmt.Fprintf(&b, "Mini description: %s\n", orPlaceholder(p.MiniDescription))
	if prof := strings.TrimSpace(p.Profession); prof != "" {
		fmt.Fprintf(&b, "Profession: %s\n", prof)
	}
	fmt.Fprintf(&b, "Biography: %s", orPlaceholder(p.Story()))
	return b.String()
}

// Limit truncates personas to max, substituting Default for an empty list.
func Limit(personas []Persona, max int) []Persona {
	if len(personas) == 0 {
		return []Persona{Default()}
	}
	if max > 0 && len(personas) > max {
		return personas[:max]
	}
	return personas
}

func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return strings.TrimSpace(v)
}
