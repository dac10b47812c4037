// Package profile describes languages and the sandbox task profiles they run under.
package profile

// LanguageSpec describes how one language is compiled and executed.
// Command templates accept {src} and {bin} placeholders and are split shell-style.
type LanguageSpec struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Version          string   `yaml:"version"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileEnabled   bool     `yaml:"compileEnabled"`
	CompileCmdTpl    string   `yaml:"compileCmd"`
	RunCmdTpl        string   `yaml:"runCmd"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}
