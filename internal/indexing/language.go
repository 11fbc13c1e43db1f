package indexing

import "path/filepath"

// languageFromExtension maps a file extension to the language name recorded
// in files.language and passed to the Parser collaborator.
func languageFromExtension(path string) string {
	switch filepath.Ext(path) {
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".cpp", ".cc", ".cxx", ".c", ".h", ".hpp":
		return "cpp"
	case ".java":
		return "java"
	case ".cs":
		return "csharp"
	case ".kt", ".kts":
		return "kotlin"
	default:
		return "unknown"
	}
}
