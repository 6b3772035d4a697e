// Package sim generates synthetic agent traffic for demos and load runs.
package sim

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"oversight.dev/internal/action"
)

// Template is one kind of action an agent might attempt.
type Template struct {
	Name         string
	Descriptions []string
	Domain       action.Domain
	Irreversible bool
	Weight       int
}

type Scenario struct {
	Name      string
	Templates []Template
}

// OfficeAssistantScenario mixes routine reads with the occasional payment,
// deletion, and credential change, so every decision appears in a long run.
func OfficeAssistantScenario() Scenario {
	return Scenario{
		Name: "OfficeAssistant",
		Templates: []Template{
			{Name: "read_file", Descriptions: []string{"read today's notes", "open meeting agenda"}, Domain: action.DomainOther, Weight: 6},
			{Name: "web_search", Descriptions: []string{"look up train times", "search supplier catalogue"}, Domain: action.DomainWeb, Weight: 4},
			{Name: "send_message", Descriptions: []string{"send reminder to the team", "reply to meeting invite"}, Domain: action.DomainCommunication, Weight: 3},
			{Name: "delete_draft", Descriptions: []string{"delete draft", "remove stale draft"}, Domain: action.DomainOther, Irreversible: true, Weight: 2},
			{Name: "delete_file", Descriptions: []string{"delete old report", "remove archived export"}, Domain: action.DomainFilesystem, Irreversible: true, Weight: 2},
			{Name: "pay_invoice", Descriptions: []string{"pay supplier invoice", "transfer deposit to landlord"}, Domain: action.DomainFinance, Irreversible: true, Weight: 1},
			{Name: "rotate_password", Descriptions: []string{"reset password for the shared mailbox"}, Domain: action.DomainAuthentication, Weight: 1},
			{Name: "disk_cleanup", Descriptions: []string{"format the drive to free space"}, Domain: action.DomainFilesystem, Weight: 1},
		},
	}
}

// Generator is safe for concurrent use.
type Generator struct {
	scenario Scenario
	total    int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return NewScenarioGenerator(OfficeAssistantScenario(), seed)
}

func NewScenarioGenerator(s Scenario, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	total := 0
	for _, t := range s.Templates {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total == 0 {
		panic("scenario requires at least one weighted template")
	}
	return &Generator{scenario: s, total: total, rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) NextAction() action.Descriptor {
	g.mu.Lock()
	pick := g.rnd.Intn(g.total)
	var tpl Template
	for _, t := range g.scenario.Templates {
		if t.Weight <= 0 {
			continue
		}
		if pick < t.Weight {
			tpl = t
			break
		}
		pick -= t.Weight
	}
	desc := tpl.Descriptions[g.rnd.Intn(len(tpl.Descriptions))]
	seq := g.rnd.Intn(1_000_000)
	g.mu.Unlock()

	params, _ := json.Marshal(map[string]any{"seq": seq})
	return action.Descriptor{
		Name:        tpl.Name,
		Description: desc,
		Parameters:  params,
		Reversible:  action.Bool(!tpl.Irreversible),
		Domain:      string(tpl.Domain),
	}
}

func (g *Generator) Templates() []Template {
	return append([]Template(nil), g.scenario.Templates...)
}
