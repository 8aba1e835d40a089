package triage

import (
	"fmt"
	"strings"

	"github.com/aretw0/triage/pkg/dispatch"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/graph"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/aretw0/triage/pkg/router"
	"github.com/aretw0/triage/pkg/tools"
)

// Node names of the clinic workflow.
const (
	NodeGP           = "GP"
	NodeSpecialist   = "internal_specialist"
	NodePsychologist = "psychologist"
)

const preamble = "You are a helpful AI assistant, collaborating with other assistants." +
	" Use the provided tools to progress towards answering the question." +
	" If you are unable to fully answer, that's OK, another assistant with different tools" +
	" will help where you left off. Execute what you can to make progress." +
	" If you or any of the other assistants have the final answer or deliverable," +
	" prefix your response with FINAL ANSWER so the team knows to stop." +
	" You have access to the following tools: %s.\n%s"

// Roles holds the per-node role instructions.
var Roles = map[string]string{
	NodeGP:           "you are a GP, summarize the patient's condition to the internal_specialist.",
	NodeSpecialist:   "you are an internal specialist, once you receive the condition report from the GP, you should provide a detailed diagnosis and treatment plan starting with the words 'FINAL ANSWER'.",
	NodePsychologist: "you are a psychologist, you should only provide professional emotional support.",
}

var searchProfiles = map[string]tools.SearchProfile{
	NodeGP:           tools.GPSearchProfile,
	NodeSpecialist:   tools.SpecialistSearchProfile,
	NodePsychologist: tools.PsychologistSearchProfile,
}

// ResponderFactory builds the Responder of one node from its system prompt and tools.
type ResponderFactory func(node, systemPrompt string, tools []domain.Tool) ports.Responder

// ClinicConfig configures NewClinicGraph.
type ClinicConfig struct {
	// Responder is required.
	Responder ResponderFactory
	// SearchAPIKey enables the web search tool on every node.
	SearchAPIKey string
	// SearchOptions tune the search client (endpoint, HTTP client).
	SearchOptions []tools.SearchOption
	// Router defaults to router.New() escalating to the psychologist.
	Router *router.Keyword
	// NodeOptions apply to every dispatch node.
	NodeOptions []dispatch.Option
	// GraphOptions apply at compile time.
	GraphOptions []graph.Option
}

// SystemPrompt renders the system prompt of node given its tool names.
func SystemPrompt(node string, toolNames []string) string {
	names := "none"
	if len(toolNames) > 0 {
		names = strings.Join(toolNames, ", ")
	}
	return fmt.Sprintf(preamble, names, Roles[node])
}

// NewClinicGraph compiles the default GP -> specialist -> psychologist workflow.
func NewClinicGraph(cfg ClinicConfig) (*graph.Graph, error) {
	if cfg.Responder == nil {
		return nil, fmt.Errorf("clinic graph: responder factory is required")
	}
	rt := cfg.Router
	if rt == nil {
		rt = router.New(router.WithEscalationTarget(NodePsychologist))
	}

	b := graph.NewBuilder()
	for _, name := range []string{NodeGP, NodeSpecialist, NodePsychologist} {
		reg := tools.NewRegistry(tools.NewCalculator())
		if cfg.SearchAPIKey != "" {
			reg.Register(tools.NewSearch(cfg.SearchAPIKey, searchProfiles[name], cfg.SearchOptions...))
		}
		names := reg.Names()
		responder := cfg.Responder(name, SystemPrompt(name, names), reg.Specs())

		opts := append([]dispatch.Option{dispatch.WithTools(reg, names...)}, cfg.NodeOptions...)
		b.AddNode(name, dispatch.New(name, responder, opts...))
	}

	target := rt.EscalationTarget()
	b.AddConditionalEdges(NodeGP, rt, map[string]string{
		domain.LabelContinue:  NodeSpecialist,
		domain.LabelEnd:       graph.End,
		domain.LabelSensitive: graph.End,
		target:                NodePsychologist,
	})
	b.AddConditionalEdges(NodeSpecialist, rt, map[string]string{
		domain.LabelContinue:  graph.End,
		domain.LabelEnd:       graph.End,
		domain.LabelSensitive: graph.End,
		target:                NodePsychologist,
	})
	b.AddConditionalEdges(NodePsychologist, rt, map[string]string{
		domain.LabelContinue:  graph.End,
		domain.LabelEnd:       graph.End,
		domain.LabelSensitive: graph.End,
		target:                graph.End,
	})
	b.SetStart(NodeGP)

	return b.Compile(cfg.GraphOptions...)
}
