package agent

import "strings"

var (
	researchKeywords = []string{"research", "find", "search", "information", "analyze", "study"}
	docKeywords      = []string{"document", "write", "report", "summary", "documentation"}
	codeKeywords     = []string{"code", "program", "script", "function", "class", "algorithm", "debug"}

	// 這些片語即使沒有出現 code 關鍵字也視為寫程式需求
	codingIndicators = []string{
		"write code", "create function", "build script", "program",
		"algorithm", "class", "method", "debug", "fix code",
	}
)

// canonicalOrder is the fixed execution order of the agent pipeline.
func canonicalOrder() []string {
	return []string{RoleResearch, RoleDocumentation, RoleCoding}
}

// DetermineAgents routes a request to agent roles by keyword matching.
// Requests with no match default to the research agent.
func DetermineAgents(request string) []string {
	lower := strings.ToLower(request)

	var roles []string
	if containsAny(lower, researchKeywords) {
		roles = append(roles, RoleResearch)
	}
	if containsAny(lower, docKeywords) {
		roles = append(roles, RoleDocumentation)
	}
	if containsAny(lower, codeKeywords) || IsCodingRequest(request) {
		roles = append(roles, RoleCoding)
	}

	if len(roles) == 0 {
		roles = []string{RoleResearch}
	}
	return roles
}

// IsCodingRequest reports whether the request asks for code to be produced.
func IsCodingRequest(request string) bool {
	return containsAny(strings.ToLower(request), codingIndicators)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
