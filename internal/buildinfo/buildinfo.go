package buildinfo

const (
	// VersionNumber is the numeric build version exposed to hosts.
	VersionNumber float64 = 1.0
	// VersionString is the human-readable build version.
	VersionString = "1.0.0"
)

// VersionInfo identifies the binding build. Values are process-wide constants.
type VersionInfo struct {
	Number float64
	String string
}

// Metadata captures static identifiers for the binding.
type Metadata struct {
	Name        string
	BinaryName  string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current binding build.
var Info = Metadata{
	Name:        "Nupi Whisper Binding",
	BinaryName:  "whisper-bindingd",
	Description: "Capability-safe Go binding over the whisper.cpp inference engine.",
	GeneratorID: "whisper-binding",
	Version:     VersionString,
}

// Version returns the build version info. It has no side effects.
func Version() VersionInfo {
	return VersionInfo{Number: VersionNumber, String: VersionString}
}

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(backend, language string) map[string]string {
	return map[string]string{
		"generator": Info.GeneratorID,
		"version":   VersionString,
		"backend":   backend,
		"language":  language,
	}
}
