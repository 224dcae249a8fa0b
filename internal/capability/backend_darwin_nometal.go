//go:build darwin && nometal

package capability

const (
	metalCompiled      = false
	accelerateCompiled = true
)
