// Package twin runs the persona agents ("twins") on top of the memory store
// and the learning engine.
//
// Every turn builds the persona's enhanced system prompt, asks the language
// model for a reply and learns from the exchange.
package twin

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CoordinatorID is the persona that orchestrates the others by default.
const CoordinatorID = "team_coordinator"

// Persona describes one agent of the team.
type Persona struct {
	ID           string   `yaml:"id" json:"id" validate:"required"`
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Role         string   `yaml:"role" json:"role" validate:"required"`
	Expertise    []string `yaml:"expertise" json:"expertise"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt" validate:"required"`
}

// Registry is an ordered, read-only set of personas.
type Registry struct {
	personas    []Persona
	byID        map[string]int
	coordinator string
}

// registryFile is the YAML layout read by LoadRegistry.
type registryFile struct {
	Coordinator string    `yaml:"coordinator"`
	Personas    []Persona `yaml:"personas"`
}

var personaValidator = validator.New()

// NewRegistry creates a registry. coordinatorID may be empty for a team
// without a coordinator; otherwise it must name one of the personas.
func NewRegistry(personas []Persona, coordinatorID string) (*Registry, error) {
	r := &Registry{
		personas:    make([]Persona, 0, len(personas)),
		byID:        make(map[string]int, len(personas)),
		coordinator: coordinatorID,
	}
	for i, p := range personas {
		if err := personaValidator.Struct(&p); err != nil {
			return nil, errors.Wrapf(err, "persona %d", i)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %q defined twice", p.ID)
		}
		p.Expertise = append([]string{}, p.Expertise...)
		r.byID[p.ID] = len(r.personas)
		r.personas = append(r.personas, p)
	}
	if coordinatorID != "" {
		if _, ok := r.byID[coordinatorID]; !ok {
			return nil, fmt.Errorf("coordinator %q is not a persona", coordinatorID)
		}
	}
	return r, nil
}

// LoadRegistry reads personas from a YAML file. Without a coordinator key
// the file's team_coordinator persona, if any, coordinates.
//
// Example file:
//
//	coordinator: lead
//	personas:
//	  - id: lead
//	    name: Lead
//	    role: Orchestrator
//	    system_prompt: You route work to the team.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadRegistry")
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "LoadRegistry")
	}
	coordinator := file.Coordinator
	if coordinator == "" {
		for _, p := range file.Personas {
			if p.ID == CoordinatorID {
				coordinator = CoordinatorID
			}
		}
	}
	r, err := NewRegistry(file.Personas, coordinator)
	if err != nil {
		return nil, errors.Wrap(err, "LoadRegistry")
	}
	return r, nil
}

// Get returns the persona with the given ID.
func (r *Registry) Get(id string) (Persona, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Persona{}, false
	}
	return r.personas[i], true
}

// All returns the personas in registration order.
func (r *Registry) All() []Persona {
	return append([]Persona{}, r.personas...)
}

// Coordinator returns the coordinating persona, if the team has one.
func (r *Registry) Coordinator() (Persona, bool) {
	if r.coordinator == "" {
		return Persona{}, false
	}
	return r.Get(r.coordinator)
}

// DefaultRegistry returns the built-in AppBank team.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultPersonas, CoordinatorID)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultPersonas = []Persona{
	{
		ID:        "nayeem_mobile",
		Name:      "Nayeem",
		Role:      "Mobile App Developer",
		Expertise: []string{"iOS", "Android", "React Native", "App Store"},
		SystemPrompt: "You are Nayeem, a mobile app developer at AppBank. You specialize in iOS, Android, and React Native development. " +
			"You have deep knowledge of mobile app architecture, performance optimization, and app store guidelines. " +
			"Always provide practical, code-focused solutions.",
	},
	{
		ID:        "karti_database",
		Name:      "Karti",
		Role:      "Database Developer",
		Expertise: []string{"PostgreSQL", "MongoDB", "Redis", "Data Modeling"},
		SystemPrompt: "You are Karti, a database developer at AppBank. You specialize in database design, optimization, and data modeling. " +
			"You have expertise in PostgreSQL, MongoDB, Redis, and data architecture. " +
			"Always provide database-focused solutions with performance considerations.",
	},
	{
		ID:        "niyas_ai",
		Name:      "Niyas",
		Role:      "AI Developer",
		Expertise: []string{"Machine Learning", "NLP", "Computer Vision", "MLOps"},
		SystemPrompt: "You are Niyas, an AI developer at AppBank. You specialize in machine learning, NLP, computer vision, and MLOps. " +
			"You have deep knowledge of AI model development, deployment, and optimization. " +
			"Always provide AI-focused solutions with best practices.",
	},
	{
		ID:        "utsav_fullstack",
		Name:      "Utsav",
		Role:      "Full Stack & Cloud Ops",
		Expertise: []string{"AWS", "DevOps", "Backend", "Infrastructure"},
		SystemPrompt: "You are Utsav, a full stack developer and cloud operations specialist at AppBank. " +
			"You specialize in AWS, DevOps, backend development, and infrastructure management. " +
			"Always provide cloud-focused solutions with scalability and security in mind.",
	},
	{
		ID:        "owner_ceo",
		Name:      "Owner/CEO",
		Role:      "Business Decision Maker",
		Expertise: []string{"Strategy", "Product", "Business", "Leadership"},
		SystemPrompt: "You are the Owner/CEO of AppBank. You make strategic business decisions and provide leadership guidance. " +
			"You focus on business strategy, product direction, and company growth. " +
			"Always provide business-focused insights and strategic recommendations.",
	},
	{
		ID:        CoordinatorID,
		Name:      "Team Coordinator",
		Role:      "Orchestrator",
		Expertise: []string{"Task Routing", "Collaboration", "Project Management"},
		SystemPrompt: "You are the Team Coordinator at AppBank. You route tasks to the appropriate specialists and coordinate collaboration between team members. " +
			"You understand each team member's expertise and can orchestrate complex multi-agent workflows.",
	},
}
