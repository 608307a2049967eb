// Package autoload registers all built-in LLM providers via side effects.
// Import it for its blank identifier from the main package.
package autoload

import (
	_ "concord/pkg/llm/geminilm"
	_ "concord/pkg/llm/hf"
	_ "concord/pkg/llm/ollamalm"
)
