package agent

import (
	"concord/pkg/config"
	"concord/pkg/llm"
)

// Role identifiers for the three built-in agents.
const (
	RoleResearch      = "research"
	RoleDocumentation = "documentation"
	RoleCoding        = "coding"
)

// Agent is a role-specialized wrapper around a hosted language model.
type Agent struct {
	// Role is the agent identifier ("research", "documentation", "coding").
	Role string
	// ModelAlias is the model slot the agent is bound to ("phi3", "mistral", "qwen").
	ModelAlias string
	// SystemPrompt is the persona instruction sent as the system message.
	SystemPrompt string
	// Client is the LLM client backing this agent.
	Client llm.LLMClient
}

const researchPrompt = `You are a Research Agent specialized in conducting comprehensive research on any topic.
Your capabilities include:
- Web searching and information gathering
- Analyzing and synthesizing information from multiple sources
- Providing detailed, well-structured research reports
- Fact-checking and verifying information accuracy

Always provide:
1. Clear, factual information
2. Multiple perspectives when relevant
3. Source citations
4. Structured, easy-to-read reports`

const documentationPrompt = `You are a Documentation Agent specialized in creating comprehensive, well-structured documentation.
Your capabilities include:
- Converting research findings into clear documentation
- Creating technical documentation with proper formatting
- Summarizing complex information into digestible content
- Organizing information with clear hierarchies and sections

Always provide:
1. Well-structured documents with clear headings
2. Proper formatting (markdown when appropriate)
3. Executive summaries for complex topics
4. Clear, concise language
5. Logical information flow`

const codingPrompt = `You are a Coding Agent specialized in software development and code generation.
Your capabilities include:
- Writing clean, efficient code in multiple programming languages
- Code review and optimization suggestions
- Debugging and error resolution
- Creating complete project structures
- Generating documentation for code

Always provide:
1. Clean, well-commented code
2. Proper error handling
3. Best practices and conventions
4. Performance considerations
5. Security considerations when applicable`

// defaultAgents returns the built-in role definitions in execution order.
// Research runs first so its report can feed the documentation agent.
func defaultAgents() []Agent {
	return []Agent{
		{Role: RoleResearch, ModelAlias: "phi3", SystemPrompt: researchPrompt},
		{Role: RoleDocumentation, ModelAlias: "mistral", SystemPrompt: documentationPrompt},
		{Role: RoleCoding, ModelAlias: "qwen", SystemPrompt: codingPrompt},
	}
}

// BuildAgents assembles the agent set from defaults, config overrides, and
// the per-alias client map. Agents whose alias has no client are skipped by
// the caller via the nil Client field.
func BuildAgents(cfg *config.Config, clients map[string]llm.LLMClient) []Agent {
	agents := defaultAgents()

	for i := range agents {
		if override, ok := cfg.Agents[agents[i].Role]; ok {
			if override.Model != "" {
				agents[i].ModelAlias = override.Model
			}
			if override.SystemPrompt != "" {
				agents[i].SystemPrompt = override.SystemPrompt
			}
		}
		agents[i].Client = clients[agents[i].ModelAlias]
	}

	return agents
}
