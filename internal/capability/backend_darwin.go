//go:build darwin && !nometal

package capability

// ggml on darwin builds with both Metal and the Accelerate framework.
const (
	metalCompiled      = true
	accelerateCompiled = true
)
